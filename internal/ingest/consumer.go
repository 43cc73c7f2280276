// Package ingest turns producer messages from the notification topic into
// stored notifications.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/consultportal/portal/internal/notifications"
	"github.com/consultportal/portal/internal/services"
	"github.com/consultportal/portal/pkg/logger"
	"github.com/consultportal/portal/pkg/metrics"
	appValidator "github.com/consultportal/portal/pkg/validator"
)

// Message results recorded in the ingest counter.
const (
	ResultCreated = "created"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Reader is the subset of *kafka.Reader used by the consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Creator persists template-rendered notifications.
type Creator interface {
	Registry() *notifications.Registry
	CreateEnhancedFromSource(ctx context.Context, userID string, payload notifications.Payload, opts notifications.EnhancedOptions, source string) (notifications.EnhancedResult, error)
}

// Config describes the topic subscription.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

// NewKafkaReader builds a consumer-group reader with manual commits.
func NewKafkaReader(cfg Config) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("ingest: kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("ingest: kafka topic is required")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("ingest: kafka group id is required")
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1 << 20
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}

	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        cfg.MaxWait,
		CommitInterval: 0,
	}), nil
}

// Option customises a Consumer.
type Option func(*Consumer)

// WithBackOff overrides the policy applied between failed fetches.
func WithBackOff(policy backoff.BackOff) Option {
	return func(c *Consumer) {
		if policy != nil {
			c.backoff = policy
		}
	}
}

// WithLogger overrides the consumer logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Consumer) {
		if log != nil {
			c.log = log
		}
	}
}

// Consumer reads enhanced notification requests and creates them. Every
// fetched message is committed, including ones that could not be processed.
type Consumer struct {
	reader  Reader
	creator Creator
	backoff backoff.BackOff
	log     *zap.Logger
}

// NewConsumer constructs a Consumer.
func NewConsumer(reader Reader, creator Creator, opts ...Option) (*Consumer, error) {
	if reader == nil {
		return nil, errors.New("ingest: reader is required")
	}
	if creator == nil {
		return nil, errors.New("ingest: creator is required")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	c := &Consumer{
		reader:  reader,
		creator: creator,
		backoff: policy,
		log:     logger.WithModule("ingest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("notification ingest started")
	c.backoff.Reset()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("notification ingest stopped")
				return nil
			}
			wait := c.backoff.NextBackOff()
			if wait == backoff.Stop {
				return fmt.Errorf("ingest: fetch message: %w", err)
			}
			c.log.Warn("notification ingest fetch failed", zap.Duration("retry_in", wait), zap.Error(err))
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}
		c.backoff.Reset()

		result := c.Handle(ctx, msg)
		metrics.IngestMessages.WithLabelValues(result).Inc()

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("notification ingest commit failed",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// Handle processes one message and returns its result label.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) string {
	fields := []zap.Field{
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}

	var req notifications.EnhancedRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		c.log.Warn("skipping undecodable ingest message", append(fields, zap.Error(err))...)
		return ResultSkipped
	}
	if err := appValidator.ValidateStruct(&req); err != nil {
		c.log.Warn("skipping invalid ingest message", append(fields, zap.Error(err))...)
		return ResultSkipped
	}

	payload, err := req.Payload(c.creator.Registry())
	if err != nil {
		c.log.Warn("skipping ingest message with unusable payload",
			append(fields, zap.String("type", req.Type), zap.Error(err))...)
		return ResultSkipped
	}

	userID := strings.TrimSpace(req.UserID)
	result, err := c.creator.CreateEnhancedFromSource(ctx, userID, payload, req.Options(), services.SourceIngest)
	if err != nil {
		c.log.Error("ingest message could not be stored",
			append(fields, zap.String("user_id", userID), zap.String("type", req.Type), zap.Error(err))...)
		return ResultFailed
	}

	c.log.Debug("ingest message stored",
		append(fields, zap.String("notification_id", result.Notification.ID), zap.Bool("email_sent", result.EmailSent))...)
	return ResultCreated
}

// Close releases the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
