package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	apppayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
)

type countingReconciler struct {
	calls atomic.Int32
	limit atomic.Int32
	err   error
}

func (r *countingReconciler) Reconcile(_ context.Context, limit int) (apppayment.ReconcileReport, error) {
	r.calls.Add(1)
	r.limit.Store(int32(limit))
	if r.err != nil {
		return apppayment.ReconcileReport{}, r.err
	}
	return apppayment.ReconcileReport{Checked: 2, Completed: 1, Pending: 1}, nil
}

func TestTickReportsReconciliation(t *testing.T) {
	t.Parallel()

	rec := &countingReconciler{}
	report := New(rec, time.Minute, 7, nil).Tick(context.Background())

	if report.Checked != 2 || report.Completed != 1 {
		t.Fatalf("expected report passthrough, got %+v", report)
	}
	if rec.limit.Load() != 7 {
		t.Fatalf("expected batch 7, got %d", rec.limit.Load())
	}
}

func TestTickSwallowsErrors(t *testing.T) {
	t.Parallel()

	rec := &countingReconciler{err: errors.New("gateway down")}
	report := New(rec, time.Minute, 0, nil).Tick(context.Background())
	if report.Checked != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
	if rec.limit.Load() != defaultBatch {
		t.Fatalf("expected default batch %d, got %d", defaultBatch, rec.limit.Load())
	}
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()

	rec := &countingReconciler{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(rec, 5*time.Millisecond, 1, nil).Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for rec.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("expected at least two reconciliation passes")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return after cancel")
	}
}
