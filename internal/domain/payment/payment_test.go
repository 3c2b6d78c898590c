package payment

import (
	"errors"
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		run  func(p *Payment) error
		want Status
		err  error
	}{
		{name: "complete", run: func(p *Payment) error { return p.Complete("ch_1", "{}", now) }, want: StatusCompleted},
		{name: "fail", run: func(p *Payment) error { return p.Fail("card_declined", "{}", now) }, want: StatusFailed},
		{name: "refund_requires_completed", run: func(p *Payment) error { return p.Refund("re_1", 100, now) }, want: StatusPending, err: ErrInvalidTransition},
		{
			name: "refund_after_complete",
			run: func(p *Payment) error {
				if err := p.Complete("ch_1", "{}", now); err != nil {
					return err
				}
				return p.Refund("re_1", 1000, now)
			},
			want: StatusRefunded,
		},
		{
			name: "no_complete_after_fail",
			run: func(p *Payment) error {
				_ = p.Fail("card_declined", "{}", now)
				return p.Complete("ch_1", "{}", now)
			},
			want: StatusFailed,
			err:  ErrInvalidTransition,
		},
		{
			name: "refund_over_amount",
			run: func(p *Payment) error {
				_ = p.Complete("ch_1", "{}", now)
				return p.Refund("re_1", 1001, now)
			},
			want: StatusCompleted,
			err:  ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := New("p-1", "o-1", 1000, "usd", "card", now)
			if err != nil {
				t.Fatalf("new payment: %v", err)
			}
			err = tt.run(p)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if p.Status != tt.want {
				t.Fatalf("expected status %s, got %s", tt.want, p.Status)
			}
		})
	}
}

func TestMarkUnknownKeepsPending(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	p, _ := New("p-1", "o-1", 1000, "usd", "card", now)
	p.MarkUnknown("gateway timeout", now)

	if p.Status != StatusPending || !p.NeedsReconciliation {
		t.Fatalf("expected pending payment flagged for reconciliation, got %+v", p)
	}
	if p.IdempotencyKey != "pay_p-1" {
		t.Fatalf("expected stable idempotency key, got %q", p.IdempotencyKey)
	}
}
