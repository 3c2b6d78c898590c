package observability

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

type countingCounter struct{ total float64 }

func (c *countingCounter) Add(d float64, _ ...observability.Label) { c.total += d }
func (c *countingCounter) Bind(...observability.Label) observability.BoundCounter {
	return observability.NopCounter().Bind()
}

func TestProviderResolvesRegisteredAndUnknownMetrics(t *testing.T) {
	t.Parallel()

	c := &countingCounter{}
	tel := New(nil, nil, map[observability.MetricKey]observability.Counter{
		observability.MStockReservations: c,
		observability.MCompensations:     nil,
	}, nil)

	tel.Metrics().Counter(observability.MStockReservations).Add(3)
	tel.Metrics().Counter(observability.MCompensations).Add(1)
	tel.Metrics().Histogram(observability.MUsecaseDuration).Observe(1)

	if c.total != 3 {
		t.Fatalf("expected 3, got %v", c.total)
	}
	if tel.Logger() == nil || tel.Tracer() == nil {
		t.Fatal("expected nop fallbacks for logger and tracer")
	}
}

func TestFromRegistryRegistersServiceMetrics(t *testing.T) {
	t.Parallel()

	reg := prometrics.New("")
	tel := FromRegistry(nil, nil, reg)
	tel.Metrics().Counter(observability.MCouponRedemptions).Add(1, observability.L("outcome", "applied"))

	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == string(observability.MCouponRedemptions) {
			return
		}
	}
	t.Fatalf("expected %s to be registered", observability.MCouponRedemptions)
}
