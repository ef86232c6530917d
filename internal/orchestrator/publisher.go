package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tradegate/tradegate/internal/models"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher publishes fetched market data records to a Kafka topic,
// one JSON message per record, keyed by symbol so downstream consumers
// see per-symbol ordering.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher wraps an existing Kafka writer.
func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish serializes and writes the records in one batched call.
func (p *KafkaPublisher) Publish(ctx context.Context, records []*models.MarketData) error {
	if len(records) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("serialize failed: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.Source + ":" + r.Symbol),
			Value: value,
		})
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, msgs...); err != nil {
		// Don't report an error if context was cancelled (shutdown in progress)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
