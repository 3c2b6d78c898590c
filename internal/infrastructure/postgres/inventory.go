package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reservationColumns = `id, variant_id, reference, quantity, status, created_at, updated_at`

type InventoryRepository struct{ DB *pgxpool.Pool }

func NewInventoryRepository(db *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{DB: db}
}

func (r *InventoryRepository) Reserve(ctx context.Context, res *domain.Reservation, c domain.Change) (domain.StockLevel, error) {
	var lvl domain.StockLevel
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		// The guard on available makes the check and the decrement one statement.
		err := tx.QueryRow(ctx, `
			UPDATE stock_levels SET available = available - $2, updated_at = $3
			WHERE variant_id = $1 AND available >= $2
			RETURNING variant_id, on_hand, available, updated_at`,
			res.VariantID, res.Quantity, c.At,
		).Scan(&lvl.VariantID, &lvl.OnHand, &lvl.Available, &lvl.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			current, serr := stock(ctx, tx, res.VariantID)
			if serr != nil {
				return serr
			}
			lvl = current
			return &domain.InsufficientStockError{
				VariantID: res.VariantID,
				Requested: res.Quantity,
				Available: current.Available,
			}
		}
		if err != nil {
			return fmt.Errorf("postgres: reserve stock: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations (`+reservationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			res.ID, res.VariantID, res.Reference, res.Quantity, res.Status, res.CreatedAt, res.UpdatedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert reservation: %w", err)
		}
		return appendEntry(ctx, tx, res, domain.EntryReserve, lvl.Available+res.Quantity, lvl.Available, c)
	})
	return lvl, err
}

func (r *InventoryRepository) Release(ctx context.Context, reservationID string, c domain.Change) (*domain.Reservation, bool, error) {
	var (
		res      *domain.Reservation
		released bool
	)
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		res, err = lockReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if !res.Outstanding() {
			return nil
		}

		var available int
		if err := tx.QueryRow(ctx, `
			UPDATE stock_levels SET available = available + $2, updated_at = $3
			WHERE variant_id = $1
			RETURNING available`,
			res.VariantID, res.Quantity, c.At,
		).Scan(&available); err != nil {
			return fmt.Errorf("postgres: release stock: %w", err)
		}
		if err := closeReservation(ctx, tx, res, domain.ReservationReleased, c.At); err != nil {
			return err
		}
		released = true
		return appendEntry(ctx, tx, res, domain.EntryRelease, available-res.Quantity, available, c)
	})
	if err != nil {
		return nil, false, err
	}
	return res, released, nil
}

func (r *InventoryRepository) Commit(ctx context.Context, reservationID string, c domain.Change) (*domain.Reservation, error) {
	var res *domain.Reservation
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		res, err = lockReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		switch res.Status {
		case domain.ReservationCommitted:
			return nil
		case domain.ReservationReleased:
			return domain.ErrReservationClosed
		}

		var available int
		if err := tx.QueryRow(ctx, `
			UPDATE stock_levels SET on_hand = on_hand - $2, updated_at = $3
			WHERE variant_id = $1
			RETURNING available`,
			res.VariantID, res.Quantity, c.At,
		).Scan(&available); err != nil {
			return fmt.Errorf("postgres: commit stock: %w", err)
		}
		if err := closeReservation(ctx, tx, res, domain.ReservationCommitted, c.At); err != nil {
			return err
		}
		return appendEntry(ctx, tx, res, domain.EntryCommit, available, available, c)
	})
	if errors.Is(err, domain.ErrReservationClosed) {
		return res, err
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *InventoryRepository) Restock(ctx context.Context, variantID string, quantity int, c domain.Change) (domain.StockLevel, error) {
	if quantity <= 0 {
		return domain.StockLevel{}, domain.ErrInvalidQuantity
	}
	var lvl domain.StockLevel
	err := inTx(ctx, r.DB, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO stock_levels (variant_id, on_hand, available, updated_at)
			VALUES ($1, $2, $2, $3)
			ON CONFLICT (variant_id) DO UPDATE SET
				on_hand = stock_levels.on_hand + EXCLUDED.on_hand,
				available = stock_levels.available + EXCLUDED.available,
				updated_at = EXCLUDED.updated_at
			RETURNING variant_id, on_hand, available, updated_at`,
			variantID, quantity, c.At,
		).Scan(&lvl.VariantID, &lvl.OnHand, &lvl.Available, &lvl.UpdatedAt); err != nil {
			return fmt.Errorf("postgres: restock: %w", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO stock_ledger (id, variant_id, kind, quantity, previous_stock, new_stock, reason, actor, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.EntryID, variantID, domain.EntryRestock, quantity, lvl.Available-quantity, lvl.Available, c.Reason, c.Actor, c.At,
		)
		return err
	})
	return lvl, err
}

func (r *InventoryRepository) Stock(ctx context.Context, variantID string) (domain.StockLevel, error) {
	return stock(ctx, r.DB, variantID)
}

func (r *InventoryRepository) Reservation(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, reservationID)
	return scanReservation(row)
}

func (r *InventoryRepository) Entries(ctx context.Context, variantID string) ([]domain.LedgerEntry, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, variant_id, reservation_id, kind, quantity, previous_stock, new_stock, reason, actor, created_at
		FROM stock_ledger WHERE variant_id = $1
		ORDER BY created_at, id`, variantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LedgerEntry, error) {
		var e domain.LedgerEntry
		err := row.Scan(&e.ID, &e.VariantID, &e.ReservationID, &e.Kind, &e.Quantity,
			&e.PreviousStock, &e.NewStock, &e.Reason, &e.Actor, &e.CreatedAt)
		return e, err
	})
}

func (r *InventoryRepository) Outstanding(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Reservation, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.DB.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'reserved' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Reservation, error) {
		return scanReservation(row)
	})
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func stock(ctx context.Context, q queryRower, variantID string) (domain.StockLevel, error) {
	var lvl domain.StockLevel
	err := q.QueryRow(ctx, `
		SELECT variant_id, on_hand, available, updated_at FROM stock_levels WHERE variant_id = $1`, variantID,
	).Scan(&lvl.VariantID, &lvl.OnHand, &lvl.Available, &lvl.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StockLevel{}, domain.ErrNotFound
	}
	return lvl, err
}

func lockReservation(ctx context.Context, tx pgx.Tx, id string) (*domain.Reservation, error) {
	row := tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
	return scanReservation(row)
}

func closeReservation(ctx context.Context, tx pgx.Tx, res *domain.Reservation, status domain.ReservationStatus, at time.Time) error {
	if _, err := tx.Exec(ctx, `UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1`, res.ID, status, at); err != nil {
		return fmt.Errorf("postgres: update reservation: %w", err)
	}
	res.Status = status
	res.UpdatedAt = at
	return nil
}

func appendEntry(ctx context.Context, tx pgx.Tx, res *domain.Reservation, kind domain.EntryKind, prev, next int, c domain.Change) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_ledger (id, variant_id, reservation_id, kind, quantity, previous_stock, new_stock, reason, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.EntryID, res.VariantID, res.ID, kind, res.Quantity, prev, next, c.Reason, c.Actor, c.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: append ledger entry: %w", err)
	}
	return nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(&res.ID, &res.VariantID, &res.Reference, &res.Quantity, &res.Status, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}
