// Command resolve runs a single earthquake search against the configured
// database and USGS feed and prints the result as JSON. It reads the same
// environment variables as the service.
//
// Usage:
//
//	go run ./cmd/resolve -city 1 -start 2021-06-01 -end 2021-07-05
//	go run ./cmd/resolve -add-city "Los Angeles" -lat 34.052235 -lon -118.243683
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/quake-search-service/internal/app"
	"github.com/couchcryptid/quake-search-service/internal/config"
	"github.com/couchcryptid/quake-search-service/internal/domain"
	"github.com/couchcryptid/quake-search-service/internal/observability"
	"github.com/couchcryptid/quake-search-service/internal/search"
)

func main() {
	cityID := flag.String("city", "", "city id to search around")
	start := flag.String("start", "", "start date (YYYY-MM-DD)")
	end := flag.String("end", "", "end date (YYYY-MM-DD)")
	addCity := flag.String("add-city", "", "register a city with -lat/-lon instead of searching")
	lat := flag.Float64("lat", 0, "latitude for -add-city")
	lon := flag.Float64("lon", 0, "longitude for -add-city")
	flag.Parse()

	if err := run(*cityID, *start, *end, *addCity, domain.Coordinate{Lat: *lat, Lon: *lon}, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cityID, start, end, addCity string, coord domain.Coordinate, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout carries only the JSON result.
	logger := observability.NewLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat).With("cmd", "resolve")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if addCity != "" {
		city, err := a.DB.CreateCity(ctx, addCity, coord)
		if err != nil {
			return err
		}
		return enc.Encode(city)
	}

	outcome, err := a.Service.Resolve(ctx, search.SearchRequest{CityID: cityID, Start: start, End: end})
	if err != nil {
		return err
	}
	return enc.Encode(outcome.View)
}
