package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes an incoming Kafka message
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// PermanentErrorFunc reports whether a handler error will never succeed on retry.
// Such messages are sent to the dead letter topic, if any, and committed.
type PermanentErrorFunc func(err error) bool

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type deadLetterWriter interface {
	PublishRaw(ctx context.Context, key string, headers map[string]string, value []byte) error
}

// Consumer reads raw payloads and commits an offset only after the handler succeeds
type Consumer struct {
	reader      messageReader
	topic       string
	logger      ectologger.Logger
	handler     MessageHandler
	isPermanent PermanentErrorFunc
	deadLetter  deadLetterWriter
	// retryBackoff is the first wait before a failed message is handled again
	retryBackoff time.Duration
	wg           sync.WaitGroup
	cancel       context.CancelFunc
}

const (
	defaultRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second
)

// ConsumerOption configures a Consumer
type ConsumerOption func(*Consumer)

// WithDeadLetter routes messages that fail permanently to producer
func WithDeadLetter(producer *Producer, isPermanent PermanentErrorFunc) ConsumerOption {
	return func(c *Consumer) {
		if producer != nil {
			c.deadLetter = producer
		}
		c.isPermanent = isPermanent
	}
}

// WithRetryBackoff sets the first wait before a failed message is retried
func WithRetryBackoff(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: cfg.StartOffset,
	})
	return newConsumer(reader, cfg.Topic, logger, handler, opts...)
}

func newConsumer(reader messageReader, topic string, logger ectologger.Logger, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:       reader,
		topic:        topic,
		logger:       logger,
		handler:      handler,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins consuming messages in the background
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithField("topic", c.topic).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			continue
		}

		// a failed message is retried in place; moving on would let a later
		// commit skip past it
		backoff := c.retryBackoff
		for !c.processMessage(ctx, msg) {
			select {
			case <-ctx.Done():
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}
		}
	}
}

// processMessage reports whether the message is finished with, either handled
// or dead-lettered, and committed
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) bool {
	incoming := newIncomingMessage(msg)
	ctx = extractTrace(ctx, incoming.Headers)

	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"source":    incoming.Source(),
		"source_id": incoming.SourceID(),
	})

	if err := c.handler(ctx, incoming); err != nil {
		if c.isPermanent == nil || !c.isPermanent(err) {
			// not committing keeps the message for redelivery after a restart or rebalance
			log.WithError(err).Error("Failed to process message (not committing)")
			metrics.RecordKafkaConsume(msg.Topic, "error")
			return false
		}

		log.WithError(err).Warn("Message failed permanently")
		if c.deadLetter != nil {
			headers := incoming.Headers
			headers["error"] = err.Error()
			if dlqErr := c.deadLetter.PublishRaw(ctx, string(msg.Key), headers, msg.Value); dlqErr != nil {
				log.WithError(dlqErr).Error("Failed to publish to dead letter topic (not committing)")
				metrics.RecordKafkaConsume(msg.Topic, "error")
				return false
			}
		}
		metrics.RecordKafkaConsume(msg.Topic, "dead_letter")
	} else {
		metrics.RecordKafkaConsume(msg.Topic, "success")
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
	return true
}

// Health reports whether the consumer has a reader
func (c *Consumer) Health() bool {
	return c.reader != nil
}
