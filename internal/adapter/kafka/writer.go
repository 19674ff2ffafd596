// Package kafka publishes observations to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/netatmo-ingest/internal/domain"
	"github.com/couchcryptid/netatmo-ingest/internal/observability"
)

// Writer produces observation messages. The topic is chosen per call.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWriter creates a Kafka producer. Messages are keyed by sensor id and
// hash-balanced, so readings of one sensor stay in order on one partition.
func NewWriter(brokers []string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, clock: clockwork.NewRealClock(), logger: logger}
}

// Publish writes one observation to topic.
func (w *Writer) Publish(ctx context.Context, topic string, obs domain.Observation) error {
	msg, err := serializeToMessage(obs, w.clock.Now(), observability.CorrelationIDFrom(ctx))
	if err != nil {
		return err
	}
	msg.Topic = topic
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish observation %s to %s: %w", obs.MadeBySensor, topic, err)
	}
	w.logger.Debug("observation published",
		"topic", topic,
		"sensor", obs.MadeBySensor,
		"property", obs.ObservedProperty,
	)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an Observation into a Kafka message.
func serializeToMessage(obs domain.Observation, publishedAt time.Time, correlationID string) (kafkago.Message, error) {
	data, err := json.Marshal(obs)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation: %w", err)
	}
	headers := []kafkago.Header{
		{Key: "observed_property", Value: []byte(obs.ObservedProperty)},
		{Key: "aggregation", Value: []byte(obs.Aggregation)},
		{Key: "published_at", Value: []byte(publishedAt.UTC().Format(time.RFC3339))},
	}
	if correlationID != "" {
		headers = append(headers, kafkago.Header{Key: "correlation_id", Value: []byte(correlationID)})
	}
	return kafkago.Message{
		Key:     []byte(obs.MadeBySensor),
		Value:   data,
		Headers: headers,
	}, nil
}
