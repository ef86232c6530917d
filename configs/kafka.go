package configs

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// GetKafkaWriter builds a Kafka writer for the given topic configuration.
// Balances by message key so all records for one symbol land on the same
// partition, preserving per-symbol ordering for downstream aggregation.
func GetKafkaWriter(cfg *KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Broker),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// GetKafkaReader builds a Kafka reader for the given topic configuration.
// CommitInterval is zero: consumers commit offsets manually after a
// successful database flush (at-least-once delivery).
func GetKafkaReader(cfg *KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{cfg.Broker},
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,
	})
}
