// Package events publishes document lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/scholarvault/scholarvault-service/internal/domain"
	"github.com/scholarvault/scholarvault-service/internal/observability"
)

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, event *domain.Event) error
	Close() error
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic receives every document event.
	Topic string
	// BatchSize is the number of messages buffered before a write.
	BatchSize int
	// BatchTimeout bounds how long a partial batch waits.
	BatchTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by aggregate ID, so
// all events for one document land on the same partition.
type KafkaPublisher struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg Config, metrics *observability.Metrics, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher: topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return newKafkaPublisher(writer, metrics, logger), nil
}

func newKafkaPublisher(w messageWriter, metrics *observability.Metrics, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  w,
		metrics: metrics,
		logger:  logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish writes a single event.
func (p *KafkaPublisher) Publish(ctx context.Context, event *domain.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	})
	if p.metrics != nil {
		p.metrics.RecordEventPublished(event.EventType, err)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType, err)
	}

	p.logger.Debug().
		Str("event_type", event.EventType).
		Str("aggregate_id", event.AggregateID).
		Msg("event published")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards events. It is used when Kafka is disabled.
type NoopPublisher struct{}

// Publish does nothing.
func (NoopPublisher) Publish(context.Context, *domain.Event) error { return nil }

// Close does nothing.
func (NoopPublisher) Close() error { return nil }

// PublishDocumentEvent builds a document.* event for doc and publishes it.
// Failures are logged and never returned: a missed notification must not
// fail the request that changed the document.
func PublishDocumentEvent(ctx context.Context, pub Publisher, logger zerolog.Logger, eventType string, doc *domain.Document, outcome string) {
	if pub == nil || doc == nil {
		return
	}

	event, err := domain.NewEvent(eventType, doc.ID, doc.UserID, domain.DocumentEventPayload{
		DocumentID: doc.ID,
		Title:      doc.Title,
		DOI:        doc.DOI,
		Outcome:    outcome,
	})
	if err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}

	if err := pub.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("document_id", doc.ID.String()).
			Msg("failed to publish event")
	}
}
