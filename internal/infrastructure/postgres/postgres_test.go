package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	domcoupon "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/coupon"
	dominventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := Bootstrap(ctx, pool); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return pool
}

func change(reason string) dominventory.Change {
	return dominventory.Change{EntryID: uuid.NewString(), Reason: reason, Actor: "test", At: time.Now().UTC()}
}

func TestInventoryNeverOversells(t *testing.T) {
	pool := testPool(t)
	repo := NewInventoryRepository(pool)
	ctx := context.Background()
	variant := "var-" + uuid.NewString()

	if _, err := repo.Restock(ctx, variant, 5, change("seed")); err != nil {
		t.Fatalf("restock: %v", err)
	}

	var g errgroup.Group
	reserved := make(chan string, 20)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			res, _ := dominventory.NewReservation(uuid.NewString(), variant, "order-"+uuid.NewString(), 1, time.Now().UTC())
			_, err := repo.Reserve(ctx, res, change("reserve"))
			if errors.Is(err, dominventory.ErrInsufficientStock) {
				return nil
			}
			if err == nil {
				reserved <- res.ID
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	close(reserved)

	if n := len(reserved); n != 5 {
		t.Fatalf("expected 5 reservations, got %d", n)
	}
	lvl, err := repo.Stock(ctx, variant)
	if err != nil {
		t.Fatalf("stock: %v", err)
	}
	if lvl.Available != 0 || lvl.OnHand != 5 {
		t.Fatalf("expected available=0 on_hand=5, got %+v", lvl)
	}

	first := <-reserved
	if _, released, err := repo.Release(ctx, first, change("cancel")); err != nil || !released {
		t.Fatalf("expected release, got released=%v err=%v", released, err)
	}
	if _, released, err := repo.Release(ctx, first, change("cancel")); err != nil || released {
		t.Fatalf("expected idempotent release, got released=%v err=%v", released, err)
	}

	second := <-reserved
	if _, err := repo.Commit(ctx, second, change("paid")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := repo.Commit(ctx, first, change("paid")); !errors.Is(err, dominventory.ErrReservationClosed) {
		t.Fatalf("expected ErrReservationClosed, got %v", err)
	}

	lvl, _ = repo.Stock(ctx, variant)
	if lvl.Available != 1 || lvl.OnHand != 4 {
		t.Fatalf("expected available=1 on_hand=4, got %+v", lvl)
	}
	entries, err := repo.Entries(ctx, variant)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1+5+1+1 {
		t.Fatalf("expected 8 ledger entries, got %d", len(entries))
	}
}

func TestOrderRoundTrip(t *testing.T) {
	pool := testPool(t)
	repo := NewOrderRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	addr := domorder.Address{Name: "Ada", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}
	id := uuid.NewString()
	o, err := domorder.New(domorder.Params{
		ID:     id,
		Number: "T" + id[:12],
		Owner:  domorder.Owner{UserID: "user-1"},
		Items: []domorder.Item{
			{ID: uuid.NewString(), VariantID: "v1", ProductID: "p1", SKU: "SKU1", Quantity: 2, UnitPrice: 500, LineTotal: 1000, ReservationID: "r1"},
		},
		Totals:          domorder.Totals{Subtotal: 1000, Tax: 80, Shipping: 599, Total: 1679, Currency: "USD"},
		ShippingAddress: addr,
		BillingAddress:  addr,
		Actor:           "user-1",
		Now:             now,
	})
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	if err := repo.Insert(ctx, o); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := o.Clone()
	dup.ID = uuid.NewString()
	if err := repo.Insert(ctx, dup); !errors.Is(err, domorder.ErrNumberTaken) {
		t.Fatalf("expected ErrNumberTaken, got %v", err)
	}

	if err := o.Pay("gateway", now.Add(time.Second)); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if err := repo.Update(ctx, o); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domorder.StatusPaid || len(got.History) != 2 || len(got.Items) != 1 {
		t.Fatalf("unexpected order %+v", got)
	}
	if got.ShippingAddress != addr {
		t.Fatalf("expected address round trip, got %+v", got.ShippingAddress)
	}
	if exists, _ := repo.NumberExists(ctx, o.Number); !exists {
		t.Fatal("expected number to exist")
	}
}

func TestSequencerIncrementsPerDay(t *testing.T) {
	pool := testPool(t)
	seq := NewSequencer(pool)
	ctx := context.Background()
	day := "T" + uuid.NewString()[:8]

	a, err := seq.Next(ctx, day)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	b, _ := seq.Next(ctx, day)
	if a != 1 || b != 2 {
		t.Fatalf("expected 1 then 2, got %d then %d", a, b)
	}
}

func TestCouponRedeemRespectsLimit(t *testing.T) {
	pool := testPool(t)
	repo := NewCouponRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	c := &domcoupon.Coupon{
		ID: uuid.NewString(), Code: "pg-" + uuid.NewString()[:8], Type: domcoupon.TypePercentage,
		Value: decimal.NewFromInt(10), UsageLimit: 1, Active: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := repo.Insert(ctx, c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, c); !errors.Is(err, domcoupon.ErrCodeTaken) {
		t.Fatalf("expected ErrCodeTaken, got %v", err)
	}

	red := domcoupon.Redemption{ID: uuid.NewString(), CouponID: c.ID, Code: c.Code, OrderID: "o-1", Discount: 100, CreatedAt: now}
	got, err := repo.Redeem(ctx, c.ID, red)
	if err != nil || got.UsedCount != 1 {
		t.Fatalf("expected used_count 1, got %+v err=%v", got, err)
	}
	red.ID, red.OrderID = uuid.NewString(), "o-2"
	if _, err := repo.Redeem(ctx, c.ID, red); !errors.Is(err, domcoupon.ErrUsageLimitReached) {
		t.Fatalf("expected ErrUsageLimitReached, got %v", err)
	}

	rev := domcoupon.Redemption{ID: uuid.NewString(), CouponID: c.ID, Code: c.Code, OrderID: "o-1", Discount: 100, CreatedAt: now}
	got, err = repo.Revert(ctx, c.ID, rev)
	if err != nil || got.UsedCount != 0 {
		t.Fatalf("expected used_count 0, got %+v err=%v", got, err)
	}
	rev.ID = uuid.NewString()
	if _, err := repo.Revert(ctx, c.ID, rev); !errors.Is(err, domcoupon.ErrNotRedeemed) {
		t.Fatalf("expected ErrNotRedeemed, got %v", err)
	}

	found, err := repo.FindByCode(ctx, c.Code)
	if err != nil || !found.Value.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected value 10, got %+v err=%v", found, err)
	}
}

func TestPaymentReconciliationQueue(t *testing.T) {
	pool := testPool(t)
	repo := NewPaymentRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	p, _ := dompayment.New(uuid.NewString(), "order-"+uuid.NewString(), 1000, "USD", "card", now)
	if err := repo.Insert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.MarkUnknown("gateway timeout", now)
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}

	pending, err := repo.ListNeedingReconciliation(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, q := range pending {
		found = found || q.ID == p.ID
	}
	if !found {
		t.Fatal("expected flagged payment in reconciliation queue")
	}

	byOrder, err := repo.ListByOrder(ctx, p.OrderID)
	if err != nil || len(byOrder) != 1 {
		t.Fatalf("expected one payment for order, got %d err=%v", len(byOrder), err)
	}
	if _, err := repo.FindByReference(ctx, ""); !errors.Is(err, dompayment.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty reference, got %v", err)
	}
}
