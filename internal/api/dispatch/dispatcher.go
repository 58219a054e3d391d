// Package dispatch accepts validated edit requests, records them durably,
// and hands them to the task channel for out-of-process workers.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ngthanhbui/imageflow-be/internal/api/domain"
	"github.com/ngthanhbui/imageflow-be/internal/api/model"
	"github.com/ngthanhbui/imageflow-be/shared/message"
)

// JobCreator is the slice of the job store the dispatcher needs.
type JobCreator interface {
	CreateJob(ctx context.Context, job *model.Job) error
}

// TaskPublisher publishes encoded messages to a named topic.
type TaskPublisher interface {
	Publish(ctx context.Context, topic string, body []byte, contentType string) error
}

// Config holds dispatcher limits. An empty AllowedOperations list accepts
// any operation name; workers still reject what they cannot run.
type Config struct {
	MaxPayloadBytes   int
	PublishTimeout    time.Duration
	AllowedOperations []string
}

// Dispatcher creates job records and publishes task messages. The store
// write always happens first: a crash between write and publish leaves a
// recoverable PENDING job rather than an in-flight request with no record.
type Dispatcher struct {
	store     JobCreator
	publisher TaskPublisher
	cfg       Config
	logger    *slog.Logger
}

func NewDispatcher(store JobCreator, publisher TaskPublisher, cfg Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Submit validates the request, writes a PENDING job, and publishes the
// task message. On publish failure the job record is not rolled back; the
// caller gets ErrChannelUnavailable and the job stays PENDING in the store.
func (d *Dispatcher) Submit(ctx context.Context, ownerID, operation, payload string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("%w: owner id is required", domain.ErrAuthentication)
	}
	if operation == "" {
		return "", fmt.Errorf("%w: operation is required", domain.ErrValidation)
	}
	if !d.operationAllowed(operation) {
		return "", fmt.Errorf("%w: unknown operation %q", domain.ErrValidation, operation)
	}
	if payload == "" {
		return "", fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	if d.cfg.MaxPayloadBytes > 0 && len(payload) > d.cfg.MaxPayloadBytes {
		return "", fmt.Errorf("%w: payload exceeds %d bytes", domain.ErrValidation, d.cfg.MaxPayloadBytes)
	}

	now := time.Now().UTC()
	job := &model.Job{
		JobID:     uuid.New().String(),
		OwnerID:   ownerID,
		Operation: operation,
		Payload:   payload,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := d.store.CreateJob(ctx, job); err != nil {
		d.logger.Error("Failed to create job record",
			slog.String("owner_id", ownerID),
			slog.String("operation", operation),
			slog.Any("error", err),
		)
		// Callers rely on the sentinel regardless of which store
		// implementation sits behind the interface
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		return "", err
	}

	task := message.Task{
		JobID:       job.JobID,
		OwnerID:     job.OwnerID,
		Operation:   job.Operation,
		Payload:     job.Payload,
		SubmittedAt: now,
	}

	body, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to encode task message: %w", err)
	}

	publishCtx := ctx
	if d.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(ctx, d.cfg.PublishTimeout)
		defer cancel()
	}

	if err := d.publisher.Publish(publishCtx, message.TopicTasks, body, message.ContentTypeJSON); err != nil {
		// The PENDING record stays behind on purpose; reconciliation
		// tooling can re-publish stale jobs.
		d.logger.Error("Failed to publish task message",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}

	d.logger.Info("Job dispatched",
		slog.String("job_id", job.JobID),
		slog.String("owner_id", ownerID),
		slog.String("operation", operation),
		slog.Int("payload_size", len(payload)),
	)

	return job.JobID, nil
}

func (d *Dispatcher) operationAllowed(operation string) bool {
	if len(d.cfg.AllowedOperations) == 0 {
		return true
	}
	for _, op := range d.cfg.AllowedOperations {
		if op == operation {
			return true
		}
	}
	return false
}
