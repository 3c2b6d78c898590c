package worker

import (
	"context"
	"time"

	apppayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-fulfillment/internal/presentation/worker"
)

const (
	workerName      = "payment_reconciler"
	defaultInterval = 30 * time.Second
	defaultBatch    = 50
)

type Reconciler interface {
	Reconcile(ctx context.Context, limit int) (apppayment.ReconcileReport, error)
}

// Worker periodically asks the gateway about payments left pending by
// timeouts or lost notifications.
type Worker struct {
	reconciler Reconciler
	interval   time.Duration
	batch      int
	log        observability.Logger
}

func New(reconciler Reconciler, interval time.Duration, batch int, logger observability.Logger) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	if batch <= 0 {
		batch = defaultBatch
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Worker{
		reconciler: reconciler,
		interval:   interval,
		batch:      batch,
		log:        logger.With(observability.F("component", workerName)),
	}
}

// Run blocks until ctx is done, reconciling once per interval.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("payment_reconciler_started", observability.F("interval", w.interval.String()))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("payment_reconciler_stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs a single reconciliation pass.
func (w *Worker) Tick(ctx context.Context) apppayment.ReconcileReport {
	ctx = workerpresentation.WithEventContext(ctx, w.log, map[string]string{"worker": workerName})
	logger := logctx.FromOr(ctx, w.log)

	report, err := w.reconciler.Reconcile(ctx, w.batch)
	if err != nil {
		logger.Warn("payment_reconcile_failed", observability.F("error", err.Error()))
		return report
	}
	if report.Checked > 0 {
		logger.Info("payment_reconcile_done",
			observability.F("checked", report.Checked),
			observability.F("completed", report.Completed),
			observability.F("failed", report.Failed),
			observability.F("pending", report.Pending),
		)
	}
	return report
}
