package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService   = "payment-service"
	useCaseCreate    = "payment.create"
	useCaseCapture   = "payment.capture"
	useCaseRefund    = "payment.refund"
	useCaseReconcile = "payment.reconcile"
	useCaseNotify    = "payment.notification"
	useCaseAbandon   = "payment.abandon"

	defaultGatewayTimeout = 5 * time.Second
	publishTimeout        = 300 * time.Millisecond
	defaultMethod         = "card"
	defaultReconcileBatch = 50
)

type Options struct {
	// GatewayTimeout bounds every gateway call; an expired call leaves the payment pending.
	GatewayTimeout time.Duration
	// AutoCapture captures right after the intent is created. Gateways that need the
	// customer to confirm first leave it off and capture on the authorized webhook.
	AutoCapture bool
	Method      string
}

// Adapter keeps local payment rows in step with the external gateway.
type Adapter struct {
	repo      domain.Repository
	gateway   domain.Gateway
	ids       application.IDGenerator
	clock     application.Clock
	publisher domoutbox.Publisher
	opts      Options
	inst      *application.Instrument
}

func NewAdapter(
	repo domain.Repository,
	gateway domain.Gateway,
	ids application.IDGenerator,
	clock application.Clock,
	publisher domoutbox.Publisher,
	opts Options,
	tel observability.Observability,
) *Adapter {
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = defaultGatewayTimeout
	}
	if opts.Method == "" {
		opts.Method = defaultMethod
	}
	return &Adapter{
		repo:      repo,
		gateway:   gateway,
		ids:       ids,
		clock:     clock,
		publisher: publisher,
		opts:      opts,
		inst:      application.NewInstrument(tel, paymentService),
	}
}

type CreateInput struct {
	OrderID     string
	OrderNumber string
	Amount      int64
	Currency    string
}

// CreatePayment records a pending payment and asks the gateway for an intent.
// On a gateway timeout or outage the returned payment is still pending and
// flagged for reconciliation, together with a gateway_timeout or
// gateway_unavailable error. A decline returns the failed payment.
func (a *Adapter) CreatePayment(ctx context.Context, in CreateInput) (_ *domain.Payment, err error) {
	ctx, call := a.inst.Begin(ctx, useCaseCreate, "CreatePayment",
		attribute.String("order.id", in.OrderID),
		attribute.Int64("payment.amount", in.Amount),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", in.OrderID), observability.F("gateway", a.gateway.Name()))

	p, nerr := domain.New(a.ids.NewID(), in.OrderID, in.Amount, in.Currency, a.opts.Method, a.clock.Now())
	if nerr != nil {
		call.Fail("PAYMENT_INVALID")
		return nil, apperr.Wrap(apperr.KindValidation, nerr, "invalid payment")
	}
	if ierr := a.repo.Insert(ctx, p); ierr != nil {
		call.Fail("REPO_INSERT_FAILED")
		return nil, apperr.Internal(ierr)
	}
	call.With(observability.F("payment_id", p.ID))

	if ierr := a.createIntent(ctx, p, in.OrderNumber); ierr != nil {
		call.Fail(failStatus(ierr))
		return p, ierr
	}
	if !a.opts.AutoCapture {
		return p, nil
	}
	if cerr := a.capture(ctx, p); cerr != nil {
		call.Fail(failStatus(cerr))
		return p, cerr
	}
	return p, nil
}

// CapturePayment settles the intent behind reference. Capturing a completed
// payment returns it unchanged.
func (a *Adapter) CapturePayment(ctx context.Context, reference string) (_ *domain.Payment, err error) {
	ctx, call := a.inst.Begin(ctx, useCaseCapture, "CapturePayment",
		attribute.String("payment.reference", reference),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("reference", reference))

	p, ferr := a.repo.FindByReference(ctx, reference)
	if ferr != nil {
		return nil, a.lookupError(call, ferr)
	}
	switch p.Status {
	case domain.StatusCompleted:
		call.Status("ALREADY_CAPTURED")
		return p, nil
	case domain.StatusFailed, domain.StatusRefunded:
		call.Fail("PAYMENT_CLOSED")
		return p, apperr.Wrap(apperr.KindInvalidState, domain.ErrInvalidTransition,
			fmt.Sprintf("payment is %s", p.Status))
	}

	if cerr := a.capture(ctx, p); cerr != nil {
		call.Fail(failStatus(cerr))
		return p, cerr
	}
	return p, nil
}

// RefundPayment refunds a completed payment. A zero amount refunds it in full.
func (a *Adapter) RefundPayment(ctx context.Context, transactionID string, amount int64) (_ *domain.Payment, err error) {
	ctx, call := a.inst.Begin(ctx, useCaseRefund, "RefundPayment",
		attribute.String("payment.transaction_id", transactionID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("transaction_id", transactionID))

	p, ferr := a.repo.FindByTransaction(ctx, transactionID)
	if ferr != nil {
		return nil, a.lookupError(call, ferr)
	}
	if p.Status != domain.StatusCompleted {
		call.Fail("PAYMENT_NOT_COMPLETED")
		return p, apperr.Wrap(apperr.KindInvalidState, domain.ErrInvalidTransition,
			fmt.Sprintf("payment is %s", p.Status))
	}
	if amount == 0 {
		amount = p.Amount
	}
	if amount < 0 || amount > p.Amount {
		call.Fail("REFUND_AMOUNT_INVALID")
		return p, apperr.Wrap(apperr.KindValidation, domain.ErrInvalidAmount, "refund amount out of range")
	}

	gctx, cancel := context.WithTimeout(ctx, a.opts.GatewayTimeout)
	start := time.Now()
	ref, gerr := a.gateway.Refund(gctx, transactionID, amount, p.IdempotencyKey+"_refund")
	cancel()
	a.inst.External(a.gateway.Name(), "refund", outcomeOf(gerr), start)
	if gerr != nil {
		call.Fail(failStatus(classify(gerr)))
		return p, classify(gerr)
	}

	if rerr := p.Refund(ref.RefundID, amount, a.clock.Now()); rerr != nil {
		call.Fail("PAYMENT_TRANSITION_REJECTED")
		return p, apperr.Wrap(apperr.KindInvalidState, rerr, "refund rejected")
	}
	p.GatewayResponse = ref.Raw
	if uerr := a.repo.Update(ctx, p); uerr != nil {
		call.Fail("REPO_UPDATE_FAILED")
		return p, apperr.Internal(uerr)
	}
	a.publish(ctx, domain.NewRefundedEvent(p))
	return p, nil
}

// HandleNotification applies a verified gateway callback to the local payment.
func (a *Adapter) HandleNotification(ctx context.Context, n domain.Notification) (_ *domain.Payment, err error) {
	ctx, call := a.inst.Begin(ctx, useCaseNotify, "HandleNotification",
		attribute.String("payment.reference", n.Reference),
		attribute.String("payment.notification", string(n.Kind)),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("reference", n.Reference), observability.F("kind", string(n.Kind)))

	if n.Kind == domain.NotificationIgnored {
		call.Status("IGNORED")
		return nil, nil
	}
	if n.Kind == domain.NotificationAuthorized {
		return a.CapturePayment(ctx, n.Reference)
	}

	p, ferr := a.repo.FindByReference(ctx, n.Reference)
	if ferr != nil {
		return nil, a.lookupError(call, ferr)
	}
	if p.Status != domain.StatusPending {
		call.Status("ALREADY_SETTLED")
		return p, nil
	}

	switch n.Kind {
	case domain.NotificationCaptured:
		err = a.complete(ctx, p, n.TransactionID, "webhook")
	case domain.NotificationFailed:
		err = a.fail(ctx, p, n.Reason, "webhook")
	default:
		call.Fail("NOTIFICATION_UNKNOWN")
		return nil, apperr.Validation(fmt.Sprintf("unknown notification kind %q", n.Kind))
	}
	if err != nil {
		call.Fail("REPO_UPDATE_FAILED")
		return p, err
	}
	return p, nil
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked   int
	Completed int
	Failed    int
	Pending   int
}

// Reconcile resolves payments whose outcome is unknown after a gateway timeout or outage.
func (a *Adapter) Reconcile(ctx context.Context, limit int) (_ ReconcileReport, err error) {
	ctx, call := a.inst.Begin(ctx, useCaseReconcile, "Reconcile")
	defer func() { call.End(err) }()

	if limit <= 0 {
		limit = defaultReconcileBatch
	}
	flagged, lerr := a.repo.ListNeedingReconciliation(ctx, limit)
	if lerr != nil {
		call.Fail("REPO_LIST_FAILED")
		return ReconcileReport{}, apperr.Internal(lerr)
	}

	var report ReconcileReport
	for _, p := range flagged {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		if rerr := a.reconcileOne(ctx, p); rerr != nil {
			call.Logger().Warn("payment_reconcile_deferred",
				observability.F("payment_id", p.ID),
				observability.F("order_id", p.OrderID),
				observability.F("error", rerr.Error()),
			)
		}
		switch p.Status {
		case domain.StatusCompleted:
			report.Completed++
		case domain.StatusFailed:
			report.Failed++
		default:
			report.Pending++
		}
	}
	call.With(
		observability.F("checked", report.Checked),
		observability.F("completed", report.Completed),
		observability.F("failed", report.Failed),
		observability.F("pending", report.Pending),
	)
	return report, nil
}

func (a *Adapter) reconcileOne(ctx context.Context, p *domain.Payment) error {
	if p.GatewayReference == "" {
		// The intent may exist remotely; the idempotency key makes this safe to repeat.
		if err := a.createIntent(ctx, p, ""); err != nil {
			return err
		}
		if a.opts.AutoCapture {
			return a.capture(ctx, p)
		}
		return nil
	}

	gctx, cancel := context.WithTimeout(ctx, a.opts.GatewayTimeout)
	start := time.Now()
	remote, gerr := a.gateway.Lookup(gctx, p.GatewayReference)
	cancel()
	a.inst.External(a.gateway.Name(), "lookup", outcomeOf(gerr), start)
	if gerr != nil {
		return classify(gerr)
	}

	switch remote.State {
	case domain.RemoteCaptured:
		return a.complete(ctx, p, remote.TransactionID, remote.Raw)
	case domain.RemoteFailed:
		return a.fail(ctx, p, remote.Reason, remote.Raw)
	case domain.RemoteAuthorized:
		return a.capture(ctx, p)
	default:
		if !a.opts.AutoCapture {
			// Waiting on the customer; the webhook will settle it.
			p.NeedsReconciliation = false
			p.UpdatedAt = a.clock.Now()
			return a.repo.Update(ctx, p)
		}
		return nil
	}
}

// AbandonPayments closes the open payments of an order that will not be paid.
// Intents not captured yet are cancelled at the gateway and their rows marked
// failed, without a failure event. captured reports a payment the gateway had
// already taken; it is completed locally so the caller can pay or refund the
// order. A payment the gateway could not settle stays pending and flagged for
// reconciliation, and err is set.
func (a *Adapter) AbandonPayments(ctx context.Context, orderID, reason string) (captured bool, err error) {
	ctx, call := a.inst.Begin(ctx, useCaseAbandon, "AbandonPayments",
		attribute.String("order.id", orderID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("order_id", orderID))

	ps, lerr := a.repo.ListByOrder(ctx, orderID)
	if lerr != nil {
		call.Fail("REPO_LIST_FAILED")
		return false, apperr.Internal(lerr)
	}

	var errs []error
	abandoned := 0
	for _, p := range ps {
		switch p.Status {
		case domain.StatusCompleted:
			captured = true
		case domain.StatusPending:
			taken, aerr := a.abandon(ctx, p, reason)
			switch {
			case aerr != nil:
				errs = append(errs, aerr)
			case taken:
				captured = true
			default:
				abandoned++
			}
		}
	}
	call.With(observability.F("abandoned", abandoned), observability.F("captured", captured))
	if len(errs) > 0 {
		call.Fail("GATEWAY_UNRESOLVED")
		return captured, errors.Join(errs...)
	}
	if captured {
		call.Status("ALREADY_CAPTURED")
	}
	return captured, nil
}

func (a *Adapter) abandon(ctx context.Context, p *domain.Payment, reason string) (bool, error) {
	raw := p.GatewayResponse
	// Without a reference nothing remote can be captured: capture needs it.
	if p.GatewayReference != "" {
		gctx, cancel := context.WithTimeout(ctx, a.opts.GatewayTimeout)
		start := time.Now()
		remote, gerr := a.gateway.Lookup(gctx, p.GatewayReference)
		cancel()
		a.inst.External(a.gateway.Name(), "lookup", outcomeOf(gerr), start)
		if gerr != nil {
			return false, a.flag(ctx, p, gerr)
		}

		switch remote.State {
		case domain.RemoteCaptured:
			return true, a.complete(ctx, p, remote.TransactionID, remote.Raw)
		case domain.RemoteFailed:
		default:
			gctx, cancel = context.WithTimeout(ctx, a.opts.GatewayTimeout)
			start = time.Now()
			gerr = a.gateway.Cancel(gctx, p.GatewayReference, p.IdempotencyKey+"_cancel")
			cancel()
			a.inst.External(a.gateway.Name(), "cancel", outcomeOf(gerr), start)
			if gerr != nil {
				return false, a.flag(ctx, p, gerr)
			}
		}
		raw = remote.Raw
	}

	if err := p.Fail("abandoned: "+reason, raw, a.clock.Now()); err != nil {
		return false, apperr.Wrap(apperr.KindInvalidState, err, "payment cannot be abandoned")
	}
	if err := a.repo.Update(ctx, p); err != nil {
		return false, apperr.Internal(err)
	}
	return false, nil
}

func (a *Adapter) Payments(ctx context.Context, orderID string) ([]*domain.Payment, error) {
	ps, err := a.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return ps, nil
}

func (a *Adapter) createIntent(ctx context.Context, p *domain.Payment, orderNumber string) error {
	gctx, cancel := context.WithTimeout(ctx, a.opts.GatewayTimeout)
	start := time.Now()
	intent, gerr := a.gateway.CreateIntent(gctx, domain.IntentRequest{
		PaymentID:      p.ID,
		OrderID:        p.OrderID,
		OrderNumber:    orderNumber,
		Amount:         p.Amount,
		Currency:       p.Currency,
		IdempotencyKey: p.IdempotencyKey,
	})
	cancel()
	a.inst.External(a.gateway.Name(), "create_intent", outcomeOf(gerr), start)

	if gerr != nil {
		return a.settleError(ctx, p, gerr)
	}
	p.Attach(intent.Reference, intent.Raw, a.clock.Now())
	if err := a.repo.Update(ctx, p); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (a *Adapter) capture(ctx context.Context, p *domain.Payment) error {
	gctx, cancel := context.WithTimeout(ctx, a.opts.GatewayTimeout)
	start := time.Now()
	c, gerr := a.gateway.Capture(gctx, p.GatewayReference, p.IdempotencyKey+"_capture")
	cancel()
	a.inst.External(a.gateway.Name(), "capture", outcomeOf(gerr), start)

	if gerr != nil {
		return a.settleError(ctx, p, gerr)
	}
	return a.complete(ctx, p, c.TransactionID, c.Raw)
}

// settleError records the gateway failure on p and returns the classified error.
func (a *Adapter) settleError(ctx context.Context, p *domain.Payment, gerr error) error {
	classified := classify(gerr)
	if apperr.Is(classified, apperr.KindPaymentDeclined) {
		if err := a.fail(ctx, p, gerr.Error(), gerr.Error()); err != nil {
			return err
		}
		return classified
	}
	return a.flag(ctx, p, gerr)
}

// flag keeps p pending for reconciliation and returns the classified gateway error.
func (a *Adapter) flag(ctx context.Context, p *domain.Payment, gerr error) error {
	p.MarkUnknown(gerr.Error(), a.clock.Now())
	// The caller's context may already be gone; the flag must still land.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := a.repo.Update(uctx, p); err != nil {
		a.inst.Logger().Error("payment_flag_failed",
			observability.F("payment_id", p.ID),
			observability.F("error", err.Error()),
		)
	}
	return classify(gerr)
}

func (a *Adapter) complete(ctx context.Context, p *domain.Payment, transactionID, raw string) error {
	if err := p.Complete(transactionID, raw, a.clock.Now()); err != nil {
		return apperr.Wrap(apperr.KindInvalidState, err, "payment cannot complete")
	}
	if err := a.repo.Update(ctx, p); err != nil {
		return apperr.Internal(err)
	}
	a.publish(ctx, domain.NewCompletedEvent(p))
	return nil
}

func (a *Adapter) fail(ctx context.Context, p *domain.Payment, reason, raw string) error {
	if err := p.Fail(reason, raw, a.clock.Now()); err != nil {
		return apperr.Wrap(apperr.KindInvalidState, err, "payment cannot fail")
	}
	if err := a.repo.Update(ctx, p); err != nil {
		return apperr.Internal(err)
	}
	a.publish(ctx, domain.NewFailedEvent(p))
	return nil
}

func (a *Adapter) lookupError(call *application.Call, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		call.Fail("PAYMENT_RECORD_NOT_FOUND")
		return apperr.Wrap(apperr.KindNotFound, err, "payment record not found")
	}
	call.Fail("REPO_FIND_FAILED")
	return apperr.Internal(err)
}

func (a *Adapter) publish(ctx context.Context, e domoutbox.Event) {
	if a.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	start := time.Now()
	outcome := "success"
	if err := a.publisher.Publish(pubCtx, e); err != nil {
		outcome = "error"
		a.inst.Logger().Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
	a.inst.External("outbox", e.EventName(), outcome, start)
}

// classify maps gateway errors onto the adapter's failure kinds. Anything the
// gateway did not classify is treated as an outage.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrDeclined):
		return apperr.Wrap(apperr.KindPaymentDeclined, err, "payment declined")
	case errors.Is(err, domain.ErrGatewayTimeout), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindGatewayTimeout, err, "payment gateway timed out")
	default:
		return apperr.Wrap(apperr.KindGatewayUnavailable, err, "payment gateway unavailable")
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrDeclined):
		return "declined"
	case errors.Is(err, domain.ErrGatewayTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func failStatus(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindPaymentDeclined:
		return "PAYMENT_DECLINED"
	case apperr.KindGatewayTimeout:
		return "GATEWAY_TIMEOUT"
	case apperr.KindGatewayUnavailable:
		return "GATEWAY_UNAVAILABLE"
	default:
		return "PAYMENT_FAILED"
	}
}
