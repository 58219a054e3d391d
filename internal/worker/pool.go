package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ngthanhbui/imageflow-be/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.tasksChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - tasksChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			w.logger.Info("Worker received task",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.Task.JobID),
				slog.String("operation", msg.Task.Operation),
				slog.Uint64("delivery_tag", msg.Delivery.DeliveryTag),
			)

			status := w.processTask(ctx, msg.Task)

			// The task is only acked once its status message is on the
			// broker. A retryable publish failure requeues the whole task
			// so the outcome is never silently lost.
			if err := w.publishStatus(ctx, status); err != nil {
				requeue := w.shouldRequeue(err)
				w.logger.Error("Failed to publish status",
					slog.String("worker_name", workerName),
					slog.String("job_id", msg.Task.JobID),
					slog.Bool("requeue", requeue),
					slog.String("error", err.Error()),
				)
				if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("job_id", msg.Task.JobID),
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if ackErr := msg.Delivery.Ack(false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("job_id", msg.Task.JobID),
					slog.String("error", ackErr.Error()),
				)
				continue
			}

			w.logger.Info("Task settled",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.Task.JobID),
				slog.Bool("success", status.Success),
			)
		}
	}
}

// shouldRequeue reports whether a publish failure is worth redelivering.
// Only transient broker errors are; a permanent error would loop forever.
func (w *Worker) shouldRequeue(err error) bool {
	var retryable *domain.RetryableError
	return errors.As(err, &retryable)
}
