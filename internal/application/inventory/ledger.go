package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

const (
	inventoryService  = "inventory-service"
	useCaseReserve    = "inventory.reserve"
	useCaseRelease    = "inventory.release"
	useCaseCommit     = "inventory.commit"
	useCaseRestock    = "inventory.restock"
	publishTimeout    = 300 * time.Millisecond
	defaultActor      = "system"
	reasonReservation = "order placement"
)

var ErrRepository = errors.New("inventory: repository failure")

// Ledger is the entry point for every stock movement.
type Ledger struct {
	repo      domain.Repository
	ids       application.IDGenerator
	clock     application.Clock
	publisher domoutbox.Publisher
	inst      *application.Instrument

	reservations observability.Counter // stock_reservations_total{outcome}
}

func NewLedger(
	repo domain.Repository,
	ids application.IDGenerator,
	clock application.Clock,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Ledger {
	inst := application.NewInstrument(tel, inventoryService)
	return &Ledger{
		repo:         repo,
		ids:          ids,
		clock:        clock,
		publisher:    publisher,
		inst:         inst,
		reservations: inst.Metrics().Counter(observability.MStockReservations),
	}
}

type ReserveInput struct {
	VariantID string
	Quantity  int
	Reference string
	Actor     string
}

// ReserveStock holds quantity units of a variant for the given reference.
func (l *Ledger) ReserveStock(ctx context.Context, in ReserveInput) (_ *domain.Reservation, err error) {
	ctx, call := l.inst.Begin(ctx, useCaseReserve, "ReserveStock",
		attribute.String("inventory.variant_id", in.VariantID),
		attribute.Int("inventory.quantity", in.Quantity),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("variant_id", in.VariantID), observability.F("reference", in.Reference))

	now := l.clock.Now()
	res, derr := domain.NewReservation(l.ids.NewID(), in.VariantID, in.Reference, in.Quantity, now)
	if derr != nil {
		call.Fail("RESERVATION_INVALID")
		return nil, apperr.Wrap(apperr.KindValidation, derr, "invalid reservation")
	}

	level, rerr := l.repo.Reserve(ctx, res, l.change(reasonReservation, in.Actor, now))
	if rerr != nil {
		var short *domain.InsufficientStockError
		switch {
		case errors.As(rerr, &short):
			call.Fail("INSUFFICIENT_STOCK")
			l.reservations.Add(1, observability.L("outcome", "insufficient"))
			return nil, apperr.Wrap(apperr.KindInsufficientStock, rerr,
				fmt.Sprintf("insufficient stock for variant %s", in.VariantID))
		case errors.Is(rerr, domain.ErrNotFound):
			call.Fail("VARIANT_NOT_STOCKED")
			l.reservations.Add(1, observability.L("outcome", "not_found"))
			return nil, apperr.Wrap(apperr.KindNotFound, rerr, fmt.Sprintf("variant %s has no stock record", in.VariantID))
		default:
			call.Fail("REPO_RESERVE_FAILED")
			l.reservations.Add(1, observability.L("outcome", "error"))
			return nil, wrapRepositoryError(rerr)
		}
	}

	l.reservations.Add(1, observability.L("outcome", "reserved"))
	call.With(observability.F("available", level.Available), observability.F("reservation_id", res.ID))
	return res, nil
}

type ReleaseInput struct {
	ReservationID string
	Reason        string
	Actor         string
}

type ReleaseResult struct {
	Reservation *domain.Reservation
	// Released is false when the reservation was already closed.
	Released bool
}

// ReleaseStock gives a reservation's stock back. Calling it again is a no-op.
func (l *Ledger) ReleaseStock(ctx context.Context, in ReleaseInput) (_ ReleaseResult, err error) {
	ctx, call := l.inst.Begin(ctx, useCaseRelease, "ReleaseStock",
		attribute.String("inventory.reservation_id", in.ReservationID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("reservation_id", in.ReservationID))

	res, released, rerr := l.repo.Release(ctx, in.ReservationID, l.change(in.Reason, in.Actor, l.clock.Now()))
	if rerr != nil {
		if errors.Is(rerr, domain.ErrReservationNotFound) {
			call.Fail("RESERVATION_NOT_FOUND")
			return ReleaseResult{}, apperr.Wrap(apperr.KindNotFound, rerr, "reservation not found")
		}
		call.Fail("REPO_RELEASE_FAILED")
		return ReleaseResult{}, wrapRepositoryError(rerr)
	}
	if !released {
		call.Status("ALREADY_CLOSED")
		return ReleaseResult{Reservation: res}, nil
	}

	l.publish(ctx, domain.NewStockReleasedEvent(res, in.Reason))
	return ReleaseResult{Reservation: res, Released: true}, nil
}

type CommitInput struct {
	ReservationID string
	Reason        string
	Actor         string
}

// CommitStock turns a reservation into a permanent deduction.
func (l *Ledger) CommitStock(ctx context.Context, in CommitInput) (_ *domain.Reservation, err error) {
	ctx, call := l.inst.Begin(ctx, useCaseCommit, "CommitStock",
		attribute.String("inventory.reservation_id", in.ReservationID),
	)
	defer func() { call.End(err) }()
	call.With(observability.F("reservation_id", in.ReservationID))

	before, gerr := l.repo.Reservation(ctx, in.ReservationID)
	if gerr != nil {
		if errors.Is(gerr, domain.ErrReservationNotFound) {
			call.Fail("RESERVATION_NOT_FOUND")
			return nil, apperr.Wrap(apperr.KindNotFound, gerr, "reservation not found")
		}
		call.Fail("REPO_GET_FAILED")
		return nil, wrapRepositoryError(gerr)
	}
	if before.Status == domain.ReservationCommitted {
		call.Status("ALREADY_COMMITTED")
		return before, nil
	}

	res, cerr := l.repo.Commit(ctx, in.ReservationID, l.change(in.Reason, in.Actor, l.clock.Now()))
	if cerr != nil {
		if errors.Is(cerr, domain.ErrReservationClosed) {
			call.Fail("RESERVATION_RELEASED")
			return nil, apperr.Wrap(apperr.KindInvalidState, cerr, "reservation was released")
		}
		call.Fail("REPO_COMMIT_FAILED")
		return nil, wrapRepositoryError(cerr)
	}

	l.publish(ctx, domain.NewStockCommittedEvent(res))
	return res, nil
}

// Restock adds units to a variant, creating its stock level when needed.
func (l *Ledger) Restock(ctx context.Context, variantID string, quantity int, actor string) (_ domain.StockLevel, err error) {
	ctx, call := l.inst.Begin(ctx, useCaseRestock, "Restock",
		attribute.String("inventory.variant_id", variantID),
		attribute.Int("inventory.quantity", quantity),
	)
	defer func() { call.End(err) }()

	if variantID == "" || quantity <= 0 {
		call.Fail("RESTOCK_INVALID")
		return domain.StockLevel{}, apperr.Validation("variant id and a positive quantity are required")
	}
	level, rerr := l.repo.Restock(ctx, variantID, quantity, l.change("restock", actor, l.clock.Now()))
	if rerr != nil {
		call.Fail("REPO_RESTOCK_FAILED")
		return domain.StockLevel{}, wrapRepositoryError(rerr)
	}
	return level, nil
}

func (l *Ledger) Stock(ctx context.Context, variantID string) (domain.StockLevel, error) {
	level, err := l.repo.Stock(ctx, variantID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.StockLevel{}, apperr.Wrap(apperr.KindNotFound, err, "variant has no stock record")
	}
	if err != nil {
		return domain.StockLevel{}, wrapRepositoryError(err)
	}
	return level, nil
}

func (l *Ledger) Entries(ctx context.Context, variantID string) ([]domain.LedgerEntry, error) {
	entries, err := l.repo.Entries(ctx, variantID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return entries, nil
}

// Outstanding lists reservations still holding stock that were created before cutoff.
func (l *Ledger) Outstanding(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Reservation, error) {
	out, err := l.repo.Outstanding(ctx, cutoff, limit)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return out, nil
}

func (l *Ledger) change(reason, actor string, now time.Time) domain.Change {
	if actor == "" {
		actor = defaultActor
	}
	return domain.Change{EntryID: l.ids.NewID(), Reason: reason, Actor: actor, At: now}
}

func (l *Ledger) publish(ctx context.Context, e domoutbox.Event) {
	if l.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	start := time.Now()
	outcome := "success"
	if err := l.publisher.Publish(pubCtx, e); err != nil {
		outcome = "error"
		l.inst.Logger().Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
	l.inst.External("outbox", e.EventName(), outcome, start)
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Internal(fmt.Errorf("%w: %v", ErrRepository, err))
}
