package payment_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	apppayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/gateway/sandbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/apperr"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e.EventName())
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fixture struct {
	adapter *apppayment.Adapter
	gateway *sandbox.Gateway
	repo    *memory.PaymentRepository
	events  *recordingPublisher
}

func newFixture(autoCapture bool) fixture {
	gw := sandbox.New()
	repo := memory.NewPaymentRepository()
	pub := &recordingPublisher{}
	adapter := apppayment.NewAdapter(repo, gw, &id.Sequence{Prefix: "pay"}, nil, pub,
		apppayment.Options{AutoCapture: autoCapture}, nil)
	return fixture{adapter: adapter, gateway: gw, repo: repo, events: pub}
}

func create(t *testing.T, f fixture) *domain.Payment {
	t.Helper()
	p, err := f.adapter.CreatePayment(context.Background(), apppayment.CreateInput{
		OrderID: "order-1", OrderNumber: "ORD202603010001", Amount: 9900, Currency: "USD",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return p
}

func TestCreatePaymentAutoCapture(t *testing.T) {
	t.Parallel()
	f := newFixture(true)

	p := create(t, f)
	if p.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", p.Status)
	}
	if p.TransactionID == "" || p.GatewayReference == "" || p.ProcessedAt == nil {
		t.Fatalf("expected reference, transaction and processed time, got %+v", p)
	}
	if p.IdempotencyKey != "pay_"+p.ID {
		t.Fatalf("unexpected idempotency key %q", p.IdempotencyKey)
	}
	if got := f.events.names(); len(got) != 1 || got[0] != "payment.completed" {
		t.Fatalf("expected payment.completed, got %v", got)
	}
}

func TestCreatePaymentGatewayFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		fault      sandbox.Fault
		wantKind   apperr.Kind
		wantStatus domain.Status
		wantFlag   bool
	}{
		{
			name:       "timeout on capture stays pending",
			fault:      sandbox.Fault{Op: sandbox.OpCapture, Err: fmt.Errorf("%w: read deadline", domain.ErrGatewayTimeout)},
			wantKind:   apperr.KindGatewayTimeout,
			wantStatus: domain.StatusPending,
			wantFlag:   true,
		},
		{
			name:       "outage on intent stays pending",
			fault:      sandbox.Fault{Op: sandbox.OpCreateIntent, Err: fmt.Errorf("%w: 503", domain.ErrGatewayUnavailable)},
			wantKind:   apperr.KindGatewayUnavailable,
			wantStatus: domain.StatusPending,
			wantFlag:   true,
		},
		{
			name:       "decline fails",
			fault:      sandbox.Fault{Op: sandbox.OpCapture, Err: fmt.Errorf("%w: insufficient_funds", domain.ErrDeclined)},
			wantKind:   apperr.KindPaymentDeclined,
			wantStatus: domain.StatusFailed,
		},
		{
			name:       "unclassified error is an outage",
			fault:      sandbox.Fault{Op: sandbox.OpCapture, Err: fmt.Errorf("connection reset")},
			wantKind:   apperr.KindGatewayUnavailable,
			wantStatus: domain.StatusPending,
			wantFlag:   true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(true)
			f.gateway.Inject(tt.fault)

			p, err := f.adapter.CreatePayment(context.Background(), apppayment.CreateInput{
				OrderID: "order-1", Amount: 1000, Currency: "USD",
			})
			if !apperr.Is(err, tt.wantKind) {
				t.Fatalf("expected kind %s, got %v", tt.wantKind, err)
			}
			stored, gerr := f.repo.Get(context.Background(), p.ID)
			if gerr != nil {
				t.Fatalf("get: %v", gerr)
			}
			if stored.Status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s", tt.wantStatus, stored.Status)
			}
			if stored.NeedsReconciliation != tt.wantFlag {
				t.Fatalf("expected needs reconciliation %v, got %v", tt.wantFlag, stored.NeedsReconciliation)
			}
		})
	}
}

func TestCapturePaymentUnknownReference(t *testing.T) {
	t.Parallel()
	f := newFixture(false)

	_, err := f.adapter.CapturePayment(context.Background(), "pi_missing")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestCapturePaymentIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(false)
	p := create(t, f)
	if p.Status != domain.StatusPending {
		t.Fatalf("expected pending before capture, got %s", p.Status)
	}

	first, err := f.adapter.CapturePayment(context.Background(), p.GatewayReference)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	second, err := f.adapter.CapturePayment(context.Background(), p.GatewayReference)
	if err != nil {
		t.Fatalf("second capture: %v", err)
	}
	if first.TransactionID != second.TransactionID {
		t.Fatalf("expected same transaction, got %s and %s", first.TransactionID, second.TransactionID)
	}
	if got := f.events.names(); len(got) != 1 {
		t.Fatalf("expected one event, got %v", got)
	}
}

func TestRefundPayment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(true)
	p := create(t, f)

	refunded, err := f.adapter.RefundPayment(ctx, p.TransactionID, 0)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != domain.StatusRefunded || refunded.RefundedAmount != p.Amount {
		t.Fatalf("expected full refund, got %+v", refunded)
	}

	if _, err := f.adapter.RefundPayment(ctx, p.TransactionID, 0); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid_state on second refund, got %v", err)
	}
	if _, err := f.adapter.RefundPayment(ctx, "ch_unknown", 0); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestRefundRequiresCompleted(t *testing.T) {
	t.Parallel()
	f := newFixture(false)
	p := create(t, f)
	p.TransactionID = "ch_pending"
	if err := f.repo.Update(context.Background(), p); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := f.adapter.RefundPayment(context.Background(), "ch_pending", 0); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid_state, got %v", err)
	}
}

func TestReconcileResolvesTimedOutCapture(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(true)
	// The gateway captured but the response never arrived.
	f.gateway.Inject(sandbox.Fault{Op: sandbox.OpCapture, Err: domain.ErrGatewayTimeout, Applied: true})

	p, err := f.adapter.CreatePayment(ctx, apppayment.CreateInput{OrderID: "order-1", Amount: 500, Currency: "USD"})
	if !apperr.Is(err, apperr.KindGatewayTimeout) {
		t.Fatalf("expected gateway_timeout, got %v", err)
	}

	report, err := f.adapter.Reconcile(ctx, 10)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Checked != 1 || report.Completed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	stored, _ := f.repo.Get(ctx, p.ID)
	if stored.Status != domain.StatusCompleted || stored.NeedsReconciliation {
		t.Fatalf("expected completed and unflagged, got %+v", stored)
	}

	report, _ = f.adapter.Reconcile(ctx, 10)
	if report.Checked != 0 {
		t.Fatalf("expected nothing left to reconcile, got %+v", report)
	}
}

func TestReconcileRecreatesMissingIntent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(true)
	f.gateway.Inject(sandbox.Fault{Op: sandbox.OpCreateIntent, Err: domain.ErrGatewayUnavailable})

	p, err := f.adapter.CreatePayment(ctx, apppayment.CreateInput{OrderID: "order-1", Amount: 500, Currency: "USD"})
	if !apperr.Is(err, apperr.KindGatewayUnavailable) {
		t.Fatalf("expected gateway_unavailable, got %v", err)
	}
	if p.GatewayReference != "" {
		t.Fatalf("expected no reference yet, got %s", p.GatewayReference)
	}

	if _, err := f.adapter.Reconcile(ctx, 10); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	stored, _ := f.repo.Get(ctx, p.ID)
	if stored.Status != domain.StatusCompleted || stored.GatewayReference == "" {
		t.Fatalf("expected completed with reference, got %+v", stored)
	}
}

func TestHandleNotification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(false)
	p := create(t, f)

	got, err := f.adapter.HandleNotification(ctx, domain.Notification{Reference: p.GatewayReference, Kind: domain.NotificationAuthorized})
	if err != nil {
		t.Fatalf("notification: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("expected authorized notification to capture, got %s", got.Status)
	}

	again, err := f.adapter.HandleNotification(ctx, domain.Notification{Reference: p.GatewayReference, Kind: domain.NotificationFailed})
	if err != nil {
		t.Fatalf("late notification: %v", err)
	}
	if again.Status != domain.StatusCompleted {
		t.Fatalf("expected settled payment to be left alone, got %s", again.Status)
	}

	if _, err := f.adapter.HandleNotification(ctx, domain.Notification{Reference: "pi_nope", Kind: domain.NotificationCaptured}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestAbandonPayments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		prepare      func(t *testing.T, f fixture, p *domain.Payment)
		wantCaptured bool
		wantErr      apperr.Kind
		wantStatus   domain.Status
		wantFlagged  bool
		wantEvents   []string
	}{
		{
			name:       "uncaptured intent is cancelled",
			wantStatus: domain.StatusFailed,
		},
		{
			name: "remote capture is completed",
			prepare: func(t *testing.T, f fixture, p *domain.Payment) {
				if _, err := f.gateway.Capture(context.Background(), p.GatewayReference, "remote"); err != nil {
					t.Fatalf("remote capture: %v", err)
				}
			},
			wantCaptured: true,
			wantStatus:   domain.StatusCompleted,
			wantEvents:   []string{"payment.completed"},
		},
		{
			name: "unreachable gateway keeps the payment flagged",
			prepare: func(t *testing.T, f fixture, p *domain.Payment) {
				f.gateway.Inject(sandbox.Fault{Op: sandbox.OpLookup, Err: fmt.Errorf("%w: reset", domain.ErrGatewayUnavailable)})
			},
			wantErr:     apperr.KindGatewayUnavailable,
			wantStatus:  domain.StatusPending,
			wantFlagged: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(false)
			p := create(t, f)
			if tt.prepare != nil {
				tt.prepare(t, f, p)
			}

			captured, err := f.adapter.AbandonPayments(context.Background(), p.OrderID, "order cancelled")
			if tt.wantErr != "" {
				if !apperr.Is(err, tt.wantErr) {
					t.Fatalf("expected %s, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("abandon: %v", err)
			}
			if captured != tt.wantCaptured {
				t.Fatalf("expected captured=%v, got %v", tt.wantCaptured, captured)
			}

			got, err := f.repo.Get(context.Background(), p.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != tt.wantStatus || got.NeedsReconciliation != tt.wantFlagged {
				t.Fatalf("expected %s flagged=%v, got %s flagged=%v", tt.wantStatus, tt.wantFlagged, got.Status, got.NeedsReconciliation)
			}
			if events := f.events.names(); fmt.Sprint(events) != fmt.Sprint(tt.wantEvents) {
				t.Fatalf("expected events %v, got %v", tt.wantEvents, events)
			}

			// A second pass finds nothing open.
			if tt.wantErr == "" {
				again, err := f.adapter.AbandonPayments(context.Background(), p.OrderID, "order cancelled")
				if err != nil || again != tt.wantCaptured {
					t.Fatalf("expected a repeat to report captured=%v, got %v err=%v", tt.wantCaptured, again, err)
				}
			}
		})
	}
}
