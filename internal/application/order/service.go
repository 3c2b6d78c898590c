package order

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/catalog"
	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const (
	orderService   = "order-service"
	publishTimeout = 300 * time.Millisecond
	systemActor    = "system"

	defaultLookupConcurrency    = 8
	defaultCompensationAttempts = 5
	defaultCompensationBackoff  = 50 * time.Millisecond
	defaultNumberPrefix         = "ORD"
	maxInsertAttempts           = 3
)

var ErrRepository = errors.New("order: repository failure")

type CouponPolicy string

const (
	// CouponStrict rejects the placement when the coupon is invalid.
	CouponStrict CouponPolicy = "strict"
	// CouponLenient places the order at full price and reports a warning.
	CouponLenient CouponPolicy = "lenient"
)

type Config struct {
	Pricing              Pricing
	CouponPolicy         CouponPolicy
	NumberPrefix         string
	LookupConcurrency    int
	CompensationAttempts int
	CompensationBackoff  time.Duration
	// PendingTTL is how long a pending order may wait for its payment before the
	// sweeper cancels it. Zero keeps pending orders until they settle.
	PendingTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Pricing.TaxRate.IsZero() && c.Pricing.FlatShipping == 0 && c.Pricing.Currency == "" {
		c.Pricing = DefaultPricing()
	}
	if c.Pricing.Currency == "" {
		c.Pricing.Currency = DefaultPricing().Currency
	}
	if c.CouponPolicy == "" {
		c.CouponPolicy = CouponStrict
	}
	if c.NumberPrefix == "" {
		c.NumberPrefix = defaultNumberPrefix
	}
	if c.LookupConcurrency <= 0 {
		c.LookupConcurrency = defaultLookupConcurrency
	}
	if c.CompensationAttempts <= 0 {
		c.CompensationAttempts = defaultCompensationAttempts
	}
	if c.CompensationBackoff <= 0 {
		c.CompensationBackoff = defaultCompensationBackoff
	}
	return c
}

type Deps struct {
	Orders      domain.Repository
	Sequencer   domain.Sequencer
	Catalog     catalog.Catalog
	Cart        catalog.Cart
	Inventory   InventoryPort
	Discounts   DiscountPort
	Payments    PaymentPort
	Idempotency IdempotencyStore
	Publisher   domoutbox.Publisher
	IDs         application.IDGenerator
	Clock       application.Clock
}

// Service runs the placement saga and the order lifecycle.
type Service struct {
	orders      domain.Repository
	numbers     *Numberer
	catalog     catalog.Catalog
	cart        catalog.Cart
	inventory   InventoryPort
	discounts   DiscountPort
	payments    PaymentPort
	idempotency IdempotencyStore
	publisher   domoutbox.Publisher
	ids         application.IDGenerator
	clock       application.Clock
	cfg         Config
	inst        *application.Instrument

	compensations observability.Counter // compensations_total{step,outcome}
	locks         orderLocks
}

func NewService(deps Deps, cfg Config, tel observability.Observability) *Service {
	cfg = cfg.withDefaults()
	inst := application.NewInstrument(tel, orderService)
	return &Service{
		orders:        deps.Orders,
		numbers:       NewNumberer(deps.Sequencer, deps.Orders, cfg.NumberPrefix),
		catalog:       deps.Catalog,
		cart:          deps.Cart,
		inventory:     deps.Inventory,
		discounts:     deps.Discounts,
		payments:      deps.Payments,
		idempotency:   deps.Idempotency,
		publisher:     deps.Publisher,
		ids:           deps.IDs,
		clock:         deps.Clock,
		cfg:           cfg,
		inst:          inst,
		compensations: inst.Metrics().Counter(observability.MCompensations),
	}
}

func (s *Service) publish(ctx context.Context, e domoutbox.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	start := time.Now()
	outcome := "success"
	if err := s.publisher.Publish(pubCtx, e); err != nil {
		outcome = "error"
		s.inst.Logger().Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
	s.inst.External("outbox", e.EventName(), outcome, start)
}

const lockStripes = 256

// orderLocks serializes transitions of the same order within the process. Orders
// hash onto a fixed set of stripes, so unrelated orders may share one.
type orderLocks struct{ stripes [lockStripes]sync.Mutex }

func (l *orderLocks) lock(orderID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	mu := &l.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
