package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-search-service/internal/config"
	"github.com/couchcryptid/quake-search-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces freshly created search results to a Kafka topic.
// It implements search.Publisher.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured results topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaResultsTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return &Publisher{writer: w, topic: cfg.KafkaResultsTopic, logger: logger}
}

// Publish writes one result keyed by its ID so updates to the same search
// land on the same partition.
func (p *Publisher) Publish(ctx context.Context, view domain.SearchView) error {
	msg, err := serializeToMessage(view)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish search %s to %s: %w", view.ID, p.topic, err)
	}
	p.logger.Debug("search result published", "id", view.ID, "topic", p.topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a SearchView into a Kafka message.
func serializeToMessage(view domain.SearchView) (kafkago.Message, error) {
	data, err := json.Marshal(view)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize search result: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(view.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "city_id", Value: []byte(strconv.FormatInt(view.CityID, 10))},
			{Key: "created_at", Value: []byte(view.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
