package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngthanhbui/imageflow-be/internal/worker/domain"
	"github.com/ngthanhbui/imageflow-be/internal/worker/imaging"
	"github.com/ngthanhbui/imageflow-be/shared/message"
)

// processTask applies the requested transform and always produces a status
// message. Processing failures become failed statuses rather than errors,
// so a broken payload is reported instead of redelivered forever.
func (w *Worker) processTask(ctx context.Context, task message.Task) message.Status {
	w.logger.Info("Processing task",
		slog.String("job_id", task.JobID),
		slog.String("operation", task.Operation),
		slog.String("worker_id", w.workerID),
	)

	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	result, err := w.executeTask(taskCtx, task)
	if err != nil {
		w.logger.Error("Task execution failed",
			slog.String("job_id", task.JobID),
			slog.String("operation", task.Operation),
			slog.String("error", err.Error()),
		)
		return message.Status{
			JobID:      task.JobID,
			Success:    false,
			Error:      err.Error(),
			ReceivedAt: time.Now().UTC(),
		}
	}

	w.logger.Info("Task completed",
		slog.String("job_id", task.JobID),
		slog.String("operation", task.Operation),
	)

	return message.Status{
		JobID:      task.JobID,
		Success:    true,
		Result:     result,
		ReceivedAt: time.Now().UTC(),
	}
}

// executeTask runs the transform off the worker goroutine so the task
// timeout is enforced even when decoding a large payload.
func (w *Worker) executeTask(ctx context.Context, task message.Task) (string, error) {
	// Fail fast before decoding a potentially large payload
	if !imaging.Supported(task.Operation) {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedOperation, task.Operation)
	}

	type outcome struct {
		result string
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		result, err := imaging.Apply(task.Operation, task.Payload)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return "", fmt.Errorf("task execution canceled: %w", ctx.Err())
	}
}

// publishStatus publishes the task outcome on the status topic. Broker
// failures come back as retryable errors so the pool requeues the task;
// anything else is dropped.
func (w *Worker) publishStatus(ctx context.Context, status message.Status) error {
	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status message: %w", err)
	}

	if err := w.rabbitClient.PublishWithRetry(ctx, message.TopicStatus, body, message.ContentTypeJSON); err != nil {
		return domain.NewRetryableError(fmt.Errorf("publish status message: %w", err))
	}

	w.logger.Debug("Status message published",
		slog.String("job_id", status.JobID),
		slog.Bool("success", status.Success),
	)

	return nil
}
