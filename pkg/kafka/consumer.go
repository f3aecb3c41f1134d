package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	// defaultMaxRetries is the number of handler attempts before a message is
	// committed and skipped (poison pill protection).
	defaultMaxRetries   = 3
	defaultRetryBackoff = 100 * time.Millisecond
)

// Handler is a function that processes a Kafka event.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topics       []string
	MinBytes     int
	MaxBytes     int
	MaxRetries   int
	RetryBackoff time.Duration
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterPublisher receives messages whose handler exhausted its retries.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msg kafka.Message, lastErr error, consumerGroup string) error
}

// Consumer reads events from one consumer group spanning several topics.
type Consumer struct {
	reader     messageReader
	handler    Handler
	logger     *slog.Logger
	dlq        DeadLetterPublisher
	group      string
	maxRetries int
	backoff    time.Duration
	closeOnce  sync.Once
}

// NewConsumer creates a consumer for cfg.Topics within cfg.GroupID.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, logger)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	c := &Consumer{
		reader:     r,
		handler:    handler,
		logger:     logger,
		group:      cfg.GroupID,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.backoff <= 0 {
		c.backoff = defaultRetryBackoff
	}
	return c
}

// WithDeadLetter routes exhausted messages to dlq before they are committed.
func (c *Consumer) WithDeadLetter(dlq DeadLetterPublisher) *Consumer {
	c.dlq = dlq
	return c
}

// Start begins consuming messages. It blocks until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", slog.String("group", c.group))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("group", c.group))
				return c.Close()
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return c.Close()
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// process handles one message. Only a context error is returned; every other
// failure is logged, dead-lettered if configured, and the message committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	outcome(msg.Topic, c.group, OutcomeReceived)
	defer observeSince(msg.Topic, c.group, time.Now())

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to unmarshal event",
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
		)
		outcome(msg.Topic, c.group, OutcomeFailed)
		c.deadLetter(ctx, msg, err)
		return nil
	}

	hctx := withDelivery(ExtractContext(ctx, msg), msg.Topic, c.group)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = c.handler(hctx, event)
		if lastErr == nil {
			outcome(msg.Topic, c.group, OutcomeProcessed)
			return nil
		}

		c.logger.Warn("handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", lastErr.Error()),
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.maxRetries),
		)

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
	}

	c.logger.Error("handler failed after all retries, skipping poison message",
		slog.String("event_type", event.EventType),
		slog.String("aggregate_id", event.AggregateID),
		slog.String("error", lastErr.Error()),
		slog.String("topic", msg.Topic),
		slog.Int64("offset", msg.Offset),
	)
	outcome(msg.Topic, c.group, OutcomeFailed)
	c.deadLetter(ctx, msg, lastErr)
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
		return
	}
	outcome(msg.Topic, c.group, OutcomeDeadLettered)
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}

// TopicPrefix is the prefix shared by catalog topics.
const TopicPrefix = "catalog"

// Topic constructs a fully-qualified topic name.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}

// PingBrokers dials the given brokers and returns nil if at least one answers
// a metadata request. Used by readiness checks.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}

	var lastErr error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka ping: all brokers unreachable: %w", lastErr)
}
