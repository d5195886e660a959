package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/couchcryptid/weather-broadcast-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher writes persisted records to the audit topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the audit topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{writer: w, logger: logger, metrics: metrics}
}

// Publish sends one record keyed by its natural key, so every version of a
// record lands on the same partition in order.
func (p *Publisher) Publish(ctx context.Context, rec domain.Record, reason string) error {
	msg, err := serializeToMessage(rec, reason)
	if err != nil {
		p.metrics.AuditPublish.WithLabelValues("error").Inc()
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.AuditPublish.WithLabelValues("error").Inc()
		return fmt.Errorf("publish %s: %w", rec.Key(), err)
	}
	p.metrics.AuditPublish.WithLabelValues("success").Inc()
	p.logger.Debug("record published", "key", rec.Key().String(), "reason", reason)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a Record into a Kafka message.
func serializeToMessage(rec domain.Record, reason string) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.Key().String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "feed", Value: []byte(rec.Feed)},
			{Key: "reason", Value: []byte(reason)},
			{Key: "created_at", Value: []byte(rec.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
