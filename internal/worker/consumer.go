package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ngthanhbui/imageflow-be/internal/worker/domain"
	"github.com/ngthanhbui/imageflow-be/shared/message"
)

// setupConsumer subscribes to the tasks topic, retrying with exponential
// backoff until the broker is reachable or the context is canceled.
func (w *Worker) setupConsumer(ctx context.Context) (<-chan amqp.Delivery, error) {
	operation := func() (<-chan amqp.Delivery, error) {
		if err := w.rabbitClient.EnsureConnected(); err != nil {
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}

		deliveries, err := w.rabbitClient.Consume(message.TopicTasks, w.workerID, w.prefetchCount)
		if err != nil {
			return nil, fmt.Errorf("consume tasks topic: %w", err)
		}
		return deliveries, nil
	}

	notifyRetry := func(err error, next time.Duration) {
		w.logger.Warn("Task subscription attempt failed, retrying",
			slog.Any("error", err),
			slog.Duration("retry_in", next),
		)
	}

	deliveries, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithNotify(notifyRetry),
	)
	if err != nil {
		return nil, err
	}

	w.logger.Info("Task consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	return deliveries, nil
}

// startMessageDispatcher reads broker deliveries, decodes them and hands
// valid tasks to the worker pool. Returns when the context is canceled or
// the delivery channel closes.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			var task message.Task
			if err := json.Unmarshal(delivery.Body, &task); err != nil {
				w.logger.Error("Failed to parse task message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages can never succeed, drop without requeue
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if _, err := uuid.Parse(task.JobID); err != nil {
				w.logger.Error("Invalid job_id in task message",
					slog.String("job_id", task.JobID),
					slog.String("error", err.Error()),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK task with invalid job_id",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			taskMsg := &domain.TaskMessage{
				Task:     task,
				Delivery: delivery,
			}

			select {
			case w.tasksChan <- taskMsg:
				w.logger.Debug("Task dispatched to worker pool",
					slog.String("job_id", task.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching task")
				// requeue so another worker can pick it up
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
