package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/search"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds a search request body.
const maxBodyBytes = 1 << 16

// Resolver resolves one search request.
type Resolver interface {
	Resolve(ctx context.Context, req search.SearchRequest) (search.Outcome, error)
}

// Server exposes the search API alongside health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	resolver   Resolver
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /api/earthquakes, /healthz, /readyz,
// and /metrics routes.
func NewServer(addr string, resolver Resolver, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
			// Writes wait on the USGS feed, so leave room past its timeout.
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		resolver: resolver,
		logger:   logger,
	}

	mux.HandleFunc("POST /api/earthquakes", s.handleSearch)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// searchBody is the POST body. city_id is accepted as a JSON number or string.
type searchBody struct {
	CityID flexibleID `json:"city_id"`
	Start  string     `json:"start"`
	End    string     `json:"end"`
}

type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("city_id must be a number or string: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON object with city_id, start, and end")
		return
	}

	out, err := s.resolver.Resolve(r.Context(), search.SearchRequest{
		CityID: string(body.CityID),
		Start:  body.Start,
		End:    body.End,
	})
	if err != nil {
		status, msg := errorResponse(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("search request failed", "status", status, "error", err)
		}
		writeError(w, status, msg)
		return
	}

	status := http.StatusOK
	if out.Created() {
		status = http.StatusCreated
	}
	w.Header().Set("X-Search-Source", string(out.Source))
	writeJSON(w, status, out.View)
}

// errorResponse maps a domain error kind onto an HTTP status and message.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "City not found"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Failed to fetch earthquakes: " + err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
