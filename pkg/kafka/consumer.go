// Package kafka wraps segmentio/kafka-go with a JSON producer and a
// fetch-handle-commit consumer loop.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// ErrSkip tells the consumer the message is unprocessable and should be
// committed without retry, such as a payload that does not decode.
var ErrSkip = errors.New("kafka: skip message")

// MessageHandler is invoked for each fetched message.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	io.Closer
}

// Consumer reads messages from a topic and dispatches them to a handler.
// A message is committed after the handler succeeds or returns ErrSkip.
// Any other handler error is retried with backoff; once the retries are
// exhausted Start returns the error without committing, so nothing at or
// after that offset is committed and the group redelivers it on restart.
type Consumer struct {
	reader  Reader
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithRetry sets the backoff used for failed messages.
func WithRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(c *Consumer) { c.retry = cfg }
}

// NewConsumer creates a Consumer for topic in the configured group.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return NewConsumerWithReader(r, topic, handler, opts...)
}

// NewConsumerWithReader builds a Consumer around an existing Reader.
func NewConsumerWithReader(r Reader, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		logger: slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.Retryable = func(err error) bool {
		return !errors.Is(err, ErrSkip) && !errors.Is(err, context.Canceled)
	}
	return c
}

// Start runs the consume loop until ctx is cancelled or the reader is
// closed. It returns an error when a message still fails after retrying.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopping")
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)

		err = resilience.Retry(ctx, "handle message", c.retry, func(ctx context.Context) error {
			return c.handler(ctx, msg)
		})
		if err != nil && !errors.Is(err, ErrSkip) {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "uncommitted_offset", msg.Offset)
				return nil
			}
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return fmt.Errorf("processing partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		} else if err != nil {
			c.logger.Warn("skipping message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
