package worker

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-fulfillment/internal/presentation/worker"
)

const (
	workerName      = "reservation_sweeper"
	defaultInterval = time.Minute
	defaultTTL      = 30 * time.Minute
	defaultBatch    = 100
)

// Sweeper releases reservations whose order never made it or was abandoned.
type Sweeper interface {
	ReleaseStale(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

type Options struct {
	Interval time.Duration
	TTL      time.Duration
	Batch    int
}

type Worker struct {
	sweeper Sweeper
	opts    Options
	log     observability.Logger
}

func New(sweeper Sweeper, opts Options, logger observability.Logger) *Worker {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Batch <= 0 {
		opts.Batch = defaultBatch
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Worker{
		sweeper: sweeper,
		opts:    opts,
		log:     logger.With(observability.F("component", workerName)),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	w.log.Info("reservation_sweeper_started",
		observability.F("interval", w.opts.Interval.String()),
		observability.F("ttl", w.opts.TTL.String()),
	)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("reservation_sweeper_stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns how many reservations it released.
func (w *Worker) Sweep(ctx context.Context) int {
	ctx = workerpresentation.WithEventContext(ctx, w.log, map[string]string{"worker": workerName})
	logger := logctx.FromOr(ctx, w.log)

	released, err := w.sweeper.ReleaseStale(ctx, w.opts.TTL, w.opts.Batch)
	if err != nil {
		logger.Warn("reservation_sweep_failed", observability.F("error", err.Error()))
	}
	if released > 0 {
		logger.Info("reservation_sweep_done", observability.F("released", released))
	}
	return released
}
