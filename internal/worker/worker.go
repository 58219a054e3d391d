package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ngthanhbui/imageflow-be/internal/worker/domain"
	"github.com/ngthanhbui/imageflow-be/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Concurrency   int
	TaskTimeout   time.Duration
	PrefetchCount int
}

// Worker consumes image tasks from the broker, runs the requested
// transform and publishes a status message for every task it takes.
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	concurrency   int
	taskTimeout   time.Duration
	prefetchCount int
	workerID      string
	tasksChan     chan *domain.TaskMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}

	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		concurrency:   cfg.Concurrency,
		taskTimeout:   cfg.TaskTimeout,
		prefetchCount: prefetch,
		workerID:      "worker-" + uuid.New().String()[:8],
		tasksChan:     make(chan *domain.TaskMessage),
		stopChan:      make(chan struct{}),
	}
}

// Start spawns the worker pool and consumes tasks until the context is
// canceled. When the delivery stream breaks it resubscribes with backoff;
// unacked tasks are redelivered by the broker.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("task_timeout", w.taskTimeout),
	)

	w.spawnWorkerPool(ctx)

	for {
		deliveries, err := w.setupConsumer(ctx)
		if err != nil {
			w.logger.Info("Worker stopping - could not subscribe",
				slog.String("error", err.Error()),
			)
			return nil
		}

		w.startMessageDispatcher(ctx, deliveries)

		if ctx.Err() != nil {
			return nil
		}

		w.logger.Warn("Task stream interrupted, resubscribing",
			slog.String("worker_id", w.workerID),
		)
	}
}

// Stop gracefully stops the worker pool
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
