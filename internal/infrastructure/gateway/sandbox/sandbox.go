// Package sandbox is an in-process payment gateway that simulates approvals,
// declines and outages.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"

	"github.com/google/uuid"
)

const (
	Name               = "sandbox"
	defaultSuccessRate = 1.0
)

type Op string

const (
	OpCreateIntent Op = "create_intent"
	OpCapture      Op = "capture"
	OpRefund       Op = "refund"
	OpLookup       Op = "lookup"
	OpCancel       Op = "cancel"
)

// Fault is a scripted failure for the next call of Op. When Applied is set the
// call takes effect remotely before the error is returned, as a timeout after
// the gateway committed would.
type Fault struct {
	Op      Op
	Err     error
	Applied bool
}

type intent struct {
	reference     string
	amount        int64
	currency      string
	state         domain.RemoteState
	transactionID string
	reason        string
	refunded      int64
}

type Gateway struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
	intents     map[string]*intent // by reference
	byKey       map[string]string  // idempotency key -> reference or refund id
	txns        map[string]string  // transaction id -> reference
	faults      []Fault
}

func New() *Gateway {
	return &Gateway{
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: defaultSuccessRate,
		intents:     make(map[string]*intent),
		byKey:       make(map[string]string),
		txns:        make(map[string]string),
	}
}

func (g *Gateway) Name() string { return Name }

// SetSuccessRate adjusts how often captures are approved.
func (g *Gateway) SetSuccessRate(rate float64) {
	g.mu.Lock()
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	g.successRate = rate
	g.mu.Unlock()
}

// Inject queues faults, consumed in order by the first matching call.
func (g *Gateway) Inject(faults ...Fault) {
	g.mu.Lock()
	g.faults = append(g.faults, faults...)
	g.mu.Unlock()
}

func (g *Gateway) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	if err := ctx.Err(); err != nil {
		return domain.Intent{}, fmt.Errorf("%w: %v", domain.ErrGatewayTimeout, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	fault, faulted := g.takeFault(OpCreateIntent)
	if faulted && !fault.Applied {
		return domain.Intent{}, fault.Err
	}

	ref, ok := g.byKey[req.IdempotencyKey]
	if !ok {
		ref = "pi_sbx_" + uuid.NewString()
		g.intents[ref] = &intent{
			reference: ref,
			amount:    req.Amount,
			currency:  req.Currency,
			state:     domain.RemoteAuthorized,
		}
		if req.IdempotencyKey != "" {
			g.byKey[req.IdempotencyKey] = ref
		}
	}
	if faulted {
		return domain.Intent{}, fault.Err
	}
	return domain.Intent{Reference: ref, ClientSecret: ref + "_secret", Raw: g.raw(g.intents[ref])}, nil
}

func (g *Gateway) Capture(ctx context.Context, reference, idempotencyKey string) (domain.Capture, error) {
	if err := ctx.Err(); err != nil {
		return domain.Capture{}, fmt.Errorf("%w: %v", domain.ErrGatewayTimeout, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	fault, faulted := g.takeFault(OpCapture)
	if faulted && !fault.Applied {
		return domain.Capture{}, fault.Err
	}

	in, ok := g.intents[reference]
	if !ok {
		return domain.Capture{}, fmt.Errorf("%w: unknown intent %s", domain.ErrDeclined, reference)
	}
	switch in.state {
	case domain.RemoteCaptured:
	case domain.RemoteFailed:
		return domain.Capture{}, fmt.Errorf("%w: %s", domain.ErrDeclined, in.reason)
	default:
		if g.random.Float64() > g.successRate {
			in.state = domain.RemoteFailed
			in.reason = "card_declined"
			return domain.Capture{}, fmt.Errorf("%w: card_declined", domain.ErrDeclined)
		}
		in.state = domain.RemoteCaptured
		in.transactionID = "ch_sbx_" + uuid.NewString()
		g.txns[in.transactionID] = reference
	}
	if faulted {
		return domain.Capture{}, fault.Err
	}
	return domain.Capture{TransactionID: in.transactionID, Raw: g.raw(in)}, nil
}

func (g *Gateway) Refund(ctx context.Context, transactionID string, amount int64, idempotencyKey string) (domain.Refund, error) {
	if err := ctx.Err(); err != nil {
		return domain.Refund{}, fmt.Errorf("%w: %v", domain.ErrGatewayTimeout, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if fault, ok := g.takeFault(OpRefund); ok {
		return domain.Refund{}, fault.Err
	}
	if id, ok := g.byKey[idempotencyKey]; ok && idempotencyKey != "" {
		return domain.Refund{RefundID: id}, nil
	}

	in, ok := g.intents[g.txns[transactionID]]
	if !ok || in.state != domain.RemoteCaptured {
		return domain.Refund{}, fmt.Errorf("%w: transaction %s is not refundable", domain.ErrDeclined, transactionID)
	}
	if in.refunded+amount > in.amount {
		return domain.Refund{}, fmt.Errorf("%w: refund exceeds captured amount", domain.ErrDeclined)
	}
	in.refunded += amount
	id := "re_sbx_" + uuid.NewString()
	if idempotencyKey != "" {
		g.byKey[idempotencyKey] = id
	}
	return domain.Refund{RefundID: id, Raw: g.raw(in)}, nil
}

func (g *Gateway) Lookup(ctx context.Context, reference string) (domain.RemoteStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.RemoteStatus{}, fmt.Errorf("%w: %v", domain.ErrGatewayTimeout, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if fault, ok := g.takeFault(OpLookup); ok {
		return domain.RemoteStatus{}, fault.Err
	}
	in, ok := g.intents[reference]
	if !ok {
		return domain.RemoteStatus{State: domain.RemotePending}, nil
	}
	return domain.RemoteStatus{
		State:         in.state,
		TransactionID: in.transactionID,
		Reason:        in.reason,
		Raw:           g.raw(in),
	}, nil
}

func (g *Gateway) Cancel(ctx context.Context, reference, _ string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayTimeout, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if fault, ok := g.takeFault(OpCancel); ok {
		return fault.Err
	}
	in, ok := g.intents[reference]
	if !ok {
		return nil
	}
	switch in.state {
	case domain.RemoteCaptured:
		return fmt.Errorf("sandbox: intent %s is already captured", reference)
	case domain.RemoteFailed:
		return nil
	}
	in.state = domain.RemoteFailed
	in.reason = "canceled"
	return nil
}

// State exposes the remote view of an intent for tests and the demo webhook.
func (g *Gateway) State(reference string) (domain.RemoteState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[reference]
	if !ok {
		return "", false
	}
	return in.state, true
}

func (g *Gateway) takeFault(op Op) (Fault, bool) {
	for i, f := range g.faults {
		if f.Op == op {
			g.faults = append(g.faults[:i], g.faults[i+1:]...)
			return f, true
		}
	}
	return Fault{}, false
}

func (g *Gateway) raw(in *intent) string {
	b, _ := json.Marshal(map[string]any{
		"id":       in.reference,
		"status":   in.state,
		"amount":   in.amount,
		"currency": in.currency,
		"charge":   in.transactionID,
	})
	return string(b)
}
