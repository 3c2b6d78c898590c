package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/discount"
	appinventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/config"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/catalog"
	domcoupon "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/coupon"
	dominventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/redisx"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"github.com/shopspring/decimal"
)

// store is the set of repositories the services run on. Postgres holds the
// ledger and orders when selected; Redis, when configured, takes over the cart,
// the order number sequence and placement idempotency.
type store struct {
	orders      domorder.Repository
	sequencer   domorder.Sequencer
	inventory   dominventory.Repository
	coupons     domcoupon.Repository
	payments    dompayment.Repository
	catalog     catalog.Catalog
	cart        catalog.Cart
	idempotency apporder.IdempotencyStore

	putVariant func(ctx context.Context, v catalog.Variant) error
	closers    []func()
}

func (s *store) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStore(ctx context.Context, cfg config.Config, logger observability.Logger) (*store, error) {
	s := &store{}

	switch cfg.Store {
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if cfg.PostgresBootstrap {
			if err := postgres.Bootstrap(ctx, pool); err != nil {
				s.close()
				return nil, err
			}
		}
		cat := postgres.NewCatalog(pool)
		s.orders = postgres.NewOrderRepository(pool)
		s.sequencer = postgres.NewSequencer(pool)
		s.inventory = postgres.NewInventoryRepository(pool)
		s.coupons = postgres.NewCouponRepository(pool)
		s.payments = postgres.NewPaymentRepository(pool)
		s.catalog = cat
		s.putVariant = cat.PutVariant
	default:
		cat := memory.NewCatalog()
		s.orders = memory.NewOrderRepository()
		s.sequencer = memory.NewSequencer()
		s.inventory = memory.NewInventoryRepository()
		s.coupons = memory.NewCouponRepository()
		s.payments = memory.NewPaymentRepository()
		s.catalog = cat
		s.putVariant = func(_ context.Context, v catalog.Variant) error {
			cat.Put(v)
			return nil
		}
	}

	if cfg.RedisAddr == "" {
		s.cart = memory.NewCart()
		s.idempotency = memory.NewIdempotencyStore()
		logger.Info("store_opened", observability.F("store", cfg.Store), observability.F("redis", false))
		return s, nil
	}

	rdb, err := redisx.New(ctx, redisx.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		s.close()
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = rdb.Close() })
	s.cart = redisx.NewCartStore(rdb)
	s.idempotency = redisx.NewIdempotencyStore(rdb)
	s.sequencer = redisx.NewSequencer(rdb)
	logger.Info("store_opened", observability.F("store", cfg.Store), observability.F("redis", true))
	return s, nil
}

var seedValidFrom = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var demoVariants = []struct {
	variant catalog.Variant
	stock   int
}{
	{variant: catalog.Variant{ID: "var-tee-m", ProductID: "prod-tee", SKU: "TEE-M", Price: 2500}, stock: 50},
	{variant: catalog.Variant{ID: "var-tee-xl", ProductID: "prod-tee", SKU: "TEE-XL", Price: 2500, PriceAdjustment: 300}, stock: 10},
	{variant: catalog.Variant{ID: "var-mug", ProductID: "prod-mug", SKU: "MUG-1", Price: 1800, SalePrice: ptr(int64(1500))}, stock: 3},
	{variant: catalog.Variant{ID: "var-poster", ProductID: "prod-poster", SKU: "POSTER-A2", Price: 4000}, stock: 1},
}

// seedDemo loads a small catalog, its stock and two coupons. Existing coupons
// are left alone so restarts against a persistent store keep working.
func seedDemo(ctx context.Context, s *store, ledger *appinventory.Ledger, engine *discount.Engine) error {
	for _, dv := range demoVariants {
		v := dv.variant
		v.StockQuantity = dv.stock
		if err := s.putVariant(ctx, v); err != nil {
			return fmt.Errorf("variant %s: %w", v.ID, err)
		}
		level, err := ledger.Stock(ctx, v.ID)
		if err == nil && level.OnHand >= dv.stock {
			continue
		}
		if _, err := ledger.Restock(ctx, v.ID, dv.stock-level.OnHand, "seed"); err != nil {
			return fmt.Errorf("stock %s: %w", v.ID, err)
		}
	}

	coupons := []domcoupon.Coupon{
		{Code: "SAVE10", Type: domcoupon.TypePercentage, Value: decimal.NewFromInt(10), MinimumAmount: 5000, UsageLimit: 100},
		{Code: "FIVEOFF", Type: domcoupon.TypeFixed, Value: decimal.NewFromInt(500), UsageLimit: 0},
	}
	for _, c := range coupons {
		c.Active = true
		c.ValidFrom = seedValidFrom
		c.ValidTo = seedValidFrom.AddDate(5, 0, 0)
		if _, err := s.coupons.FindByCode(ctx, c.Code); err == nil {
			continue
		}
		if _, err := engine.CreateCoupon(ctx, c); err != nil {
			return fmt.Errorf("coupon %s: %w", c.Code, err)
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
