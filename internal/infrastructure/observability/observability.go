// Package observability assembles the observability.Observability handed to
// every service from a tracer, a logger and the registered metric instruments.
package observability

import (
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

type stack struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

func (s stack) Tracer() observability.Tracer   { return s.tracer }
func (s stack) Logger() observability.Logger   { return s.logger }
func (s stack) Metrics() observability.Metrics { return s.metrics }

// instruments resolves metric keys; a key nobody registered gets a no-op.
type instruments struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m instruments) Counter(key observability.MetricKey) observability.Counter {
	if c := m.counters[key]; c != nil {
		return c
	}
	return observability.NopCounter()
}

func (m instruments) Histogram(key observability.MetricKey) observability.Histogram {
	if h := m.histograms[key]; h != nil {
		return h
	}
	return observability.NopHistogram()
}

// New assembles the provider. Nil parts fall back to their no-op variants and
// nil instruments in the maps are dropped.
func New(
	tracer observability.Tracer,
	logger observability.Logger,
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
) observability.Observability {
	s := stack{tracer: tracer, logger: logger, metrics: observability.NopMetrics()}
	if s.tracer == nil {
		s.tracer = observability.NopTracer()
	}
	if s.logger == nil {
		s.logger = observability.NopLogger()
	}
	if len(counters)+len(histograms) == 0 {
		return s
	}

	m := instruments{
		counters:   make(map[observability.MetricKey]observability.Counter, len(counters)),
		histograms: make(map[observability.MetricKey]observability.Histogram, len(histograms)),
	}
	for k, c := range counters {
		if c != nil {
			m.counters[k] = c
		}
	}
	for k, h := range histograms {
		if h != nil {
			m.histograms[k] = h
		}
	}
	s.metrics = m
	return s
}

// FromRegistry registers every metric the service emits on reg and assembles
// the provider around them.
func FromRegistry(tracer observability.Tracer, logger observability.Logger, reg *prometrics.Registry) observability.Observability {
	counters, histograms := reg.Instruments(observability.Counters, observability.Histograms)
	return New(tracer, logger, counters, histograms)
}
