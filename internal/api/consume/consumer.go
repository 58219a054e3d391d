// Package consume runs the status subscription loop: it applies each
// received status event to the job store idempotently and forwards it to
// the notifier for real-time delivery.
package consume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ngthanhbui/imageflow-be/internal/api/domain"
	"github.com/ngthanhbui/imageflow-be/internal/api/model"
	"github.com/ngthanhbui/imageflow-be/internal/api/notify"
	"github.com/ngthanhbui/imageflow-be/shared/message"
	amqp "github.com/rabbitmq/amqp091-go"
)

// TerminalStore is the slice of the job store the consumer needs.
type TerminalStore interface {
	GetJobByID(ctx context.Context, jobID string) (*model.Job, error)
	MarkJobTerminal(ctx context.Context, jobID string, state domain.JobState) error
}

// Notifier fans an event out to a principal's live connections.
type Notifier interface {
	Notify(principalID string, event notify.Event) int
}

// StatusSource provides the status topic's delivery stream and survives
// broker reconnects.
type StatusSource interface {
	EnsureConnected() error
	Consume(topic, consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
}

// ackAction is the acknowledgment decision for one delivery.
type ackAction int

const (
	// ackMessage commits the cursor; the message is fully handled
	ackMessage ackAction = iota
	// nackRequeue returns the message for redelivery (transient failure)
	nackRequeue
	// nackDrop rejects without requeue (malformed, dead-letter candidate)
	nackDrop
)

// Config holds consumer settings.
type Config struct {
	ConsumerTag   string
	PrefetchCount int
}

// Consumer is the long-running status subscription loop. Messages are
// processed sequentially; acknowledgment happens only after the store
// update, so a store outage turns into redelivery rather than data loss.
type Consumer struct {
	store    TerminalStore
	notifier Notifier
	source   StatusSource
	cfg      Config
	logger   *slog.Logger
}

func NewConsumer(store TerminalStore, notifier Notifier, source StatusSource, cfg Config, logger *slog.Logger) *Consumer {
	return &Consumer{
		store:    store,
		notifier: notifier,
		source:   source,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run consumes the status topic until the context is canceled. Transport
// failures trigger reconnection with exponential backoff, indefinitely.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		deliveries, err := c.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("status subscription failed: %w", err)
		}

		if done := c.drain(ctx, deliveries); done {
			return nil
		}

		c.logger.Warn("Status delivery channel closed, resubscribing")
	}
}

// subscribe (re)connects and opens the status topic's delivery stream,
// retrying with exponential backoff until the context is canceled.
func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	operation := func() (<-chan amqp.Delivery, error) {
		if err := c.source.EnsureConnected(); err != nil {
			return nil, err
		}
		return c.source.Consume(message.TopicStatus, c.cfg.ConsumerTag, c.cfg.PrefetchCount)
	}

	notifyRetry := func(err error, next time.Duration) {
		c.logger.Warn("Status subscription attempt failed, retrying",
			slog.Any("error", err),
			slog.Duration("retry_in", next),
		)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithNotify(notifyRetry),
	)
}

// drain processes deliveries until the channel closes or the context is
// canceled. Returns true when the consumer should stop for good.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Status consumer stopped - context canceled")
			return true

		case delivery, ok := <-deliveries:
			if !ok {
				return false
			}

			action := c.process(ctx, delivery.Body)
			c.settle(delivery, action)
		}
	}
}

// process applies one status message and decides its acknowledgment.
func (c *Consumer) process(ctx context.Context, body []byte) ackAction {
	var status message.Status
	if err := json.Unmarshal(body, &status); err != nil {
		c.logger.Error("Failed to parse status message",
			slog.Any("error", err),
			slog.String("body", string(body)),
		)
		return nackDrop
	}

	if status.JobID == "" {
		c.logger.Error("Status message missing job_id",
			slog.String("body", string(body)),
		)
		return nackDrop
	}

	// A success without a result can never be applied: the store only
	// accepts DONE rows that carry one. Requeueing would loop forever.
	if status.Success && status.Result == "" {
		c.logger.Error("Status message claims success without a result, dropping",
			slog.String("job_id", status.JobID),
		)
		return nackDrop
	}

	var state domain.JobState
	if status.Success {
		state = domain.Done(status.Result)
	} else {
		state = domain.Failed(status.Error)
	}

	err := c.store.MarkJobTerminal(ctx, status.JobID, state)
	switch {
	case err == nil:
		// Applied; fall through to notification

	case errors.Is(err, domain.ErrJobNotFound):
		// Only the dispatcher creates jobs. A status message for an
		// unknown id can never be applied, so it is dropped here.
		c.logger.Warn("Orphan status message for unknown job, dropping",
			slog.String("job_id", status.JobID),
		)
		return ackMessage

	case errors.Is(err, domain.ErrAlreadyTerminal):
		// At-least-once redelivery or a lost terminal race. The store is
		// untouched; the raw event is still forwarded for live delivery.
		c.logger.Info("Duplicate terminal update, store unchanged",
			slog.String("job_id", status.JobID),
			slog.Bool("success", status.Success),
		)

	default:
		// Store unavailable: no ack, so the channel redelivers. This is
		// the sole retry mechanism.
		c.logger.Error("Failed to apply status message, will be redelivered",
			slog.String("job_id", status.JobID),
			slog.Any("error", err),
		)
		return nackRequeue
	}

	c.forward(ctx, status)
	return ackMessage
}

// forward looks up the job's owner and hands the event to the notifier.
// Best effort only: a failure here never blocks acknowledgment.
func (c *Consumer) forward(ctx context.Context, status message.Status) {
	job, err := c.store.GetJobByID(ctx, status.JobID)
	if err != nil {
		c.logger.Warn("Skipping notification, owner lookup failed",
			slog.String("job_id", status.JobID),
			slog.Any("error", err),
		)
		return
	}

	delivered := c.notifier.Notify(job.OwnerID, notify.Event{
		JobID:   status.JobID,
		Success: status.Success,
		Result:  status.Result,
		Error:   status.Error,
	})

	c.logger.Debug("Status event forwarded",
		slog.String("job_id", status.JobID),
		slog.String("owner_id", job.OwnerID),
		slog.Int("connections", delivered),
	)
}

// settle acks or nacks the delivery according to the processing outcome.
func (c *Consumer) settle(delivery amqp.Delivery, action ackAction) {
	var err error
	switch action {
	case ackMessage:
		err = delivery.Ack(false)
	case nackRequeue:
		err = delivery.Nack(false, true)
	case nackDrop:
		err = delivery.Nack(false, false)
	}

	if err != nil {
		c.logger.Error("Failed to settle status delivery",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.Any("error", err),
		)
	}
}
