// Package worker runs the outbox relay that moves order events to the broker.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/cakery/internal/postgres"
	"github.com/dukerupert/cakery/internal/telemetry"
)

// Outbox claims unpublished events and settles them after publish runs.
type Outbox interface {
	Relay(ctx context.Context, limit int, publish func(context.Context, postgres.OutboxEvent) error) (postgres.RelayResult, error)
}

// Publisher delivers one event.
type Publisher interface {
	Publish(ctx context.Context, event postgres.OutboxEvent) error
}

var _ Outbox = (*postgres.OutboxStore)(nil)

// Config holds worker configuration
type Config struct {
	// WorkerID uniquely identifies this worker instance
	WorkerID string

	// PollInterval is how often to check for unpublished events
	PollInterval time.Duration

	// BatchSize caps the events claimed per pass
	BatchSize int

	// MaxConcurrency is the maximum number of relay passes in flight
	MaxConcurrency int

	// PublishTimeout bounds a single publish
	PublishTimeout time.Duration

	// ShutdownTimeout bounds the wait for in-flight passes on shutdown
	ShutdownTimeout time.Duration
}

// Worker relays order events from the outbox
type Worker struct {
	config    Config
	outbox    Outbox
	publisher Publisher
	logger    *slog.Logger
}

// NewWorker creates a new outbox relay worker
func NewWorker(outbox Outbox, publisher Publisher, config Config, logger *slog.Logger) *Worker {
	// Set defaults
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("relay-%s", uuid.New().String()[:8])
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		config:    config,
		outbox:    outbox,
		publisher: publisher,
		logger:    logger.With("worker_id", config.WorkerID),
	}
}

// Start relays events until the context is cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker starting",
		"poll_interval", w.config.PollInterval,
		"batch_size", w.config.BatchSize,
		"max_concurrency", w.config.MaxConcurrency,
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Semaphore for concurrency control
	sem := make(chan struct{}, w.config.MaxConcurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			w.wait(&wg)
			return ctx.Err()

		case <-ticker.C:
			select {
			case sem <- struct{}{}:
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer func() { <-sem }()
					// In-flight passes finish their batch after shutdown starts.
					_, _ = w.RunOnce(context.WithoutCancel(ctx))
				}()
			default:
				// At max concurrency, skip this poll
			}
		}
	}
}

func (w *Worker) wait(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timed out with relay passes in flight")
	}
}

// RunOnce performs one relay pass and returns its result.
func (w *Worker) RunOnce(ctx context.Context) (postgres.RelayResult, error) {
	result, err := w.outbox.Relay(ctx, w.config.BatchSize, w.publish)
	if err != nil {
		w.logger.Error("outbox relay failed", "error", err)
		telemetry.CaptureError(ctx, err, map[string]any{"worker_id": w.config.WorkerID})
		return result, err
	}

	if telemetry.Business != nil {
		telemetry.Business.RelayBatchSize.Observe(float64(result.Claimed))
	}
	if result.Claimed > 0 {
		w.logger.Info("outbox relay pass",
			"claimed", result.Claimed,
			"published", result.Published,
			"failed", result.Failed,
		)
	}
	return result, nil
}

func (w *Worker) publish(ctx context.Context, event postgres.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.PublishTimeout)
	defer cancel()

	if err := w.publisher.Publish(ctx, event); err != nil {
		if telemetry.Business != nil {
			telemetry.Business.EventsFailed.WithLabelValues(event.EventType).Inc()
		}
		w.logger.Warn("event publish failed",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"attempts", event.Attempts+1,
			"error", err,
		)
		return err
	}

	if telemetry.Business != nil {
		telemetry.Business.EventsPublished.WithLabelValues(event.EventType).Inc()
	}
	w.logger.Debug("event published",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"order_id", event.AggregateID,
	)
	return nil
}
