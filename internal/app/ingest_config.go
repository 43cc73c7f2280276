package app

import (
	"strings"

	"github.com/consultportal/portal/internal/ingest"
)

// KafkaReaderConfig converts the ingest configuration into the consumer representation.
func (c IngestConfig) KafkaReaderConfig() ingest.Config {
	brokers := make([]string, 0, len(c.Kafka.Brokers))
	for _, broker := range c.Kafka.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return ingest.Config{
		Brokers:  brokers,
		Topic:    strings.TrimSpace(c.Kafka.Topic),
		GroupID:  strings.TrimSpace(c.Kafka.GroupID),
		MinBytes: c.Kafka.MinBytes,
		MaxBytes: c.Kafka.MaxBytes,
		MaxWait:  c.Kafka.MaxWait,
	}
}
