package kafka

import "time"

// ConsumerConfig configures the raw payload consumer
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	// MinBytes and MaxBytes bound the fetch batch size
	MinBytes int
	MaxBytes int

	// MaxWait is the maximum time to wait for messages
	MaxWait time.Duration

	// StartOffset is used when the group has no committed offset.
	// FirstOffset (-2) reads from the beginning, LastOffset (-1) from the end.
	StartOffset int64
}

// DefaultConsumerConfig returns a ConsumerConfig with sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:     []string{"localhost:9092"},
		Topic:       "raw-payloads",
		GroupID:     "fern",
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
		StartOffset: FirstOffset,
	}
}

// ProducerConfig configures the golden record event producer
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	// RequiredAcks: 0 = no acks, 1 = leader only, -1 = all replicas
	RequiredAcks int
	MaxAttempts  int
	WriteTimeout time.Duration
	// Compression is one of none, gzip, snappy, lz4, zstd
	Compression string
}

// DefaultProducerConfig returns a ProducerConfig with sensible defaults
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "golden-records",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: 1,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		Compression:  "snappy",
	}
}

// Offset constants
const (
	FirstOffset int64 = -2
	LastOffset  int64 = -1
)
