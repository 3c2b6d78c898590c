package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// Instrument holds the RED instruments and base logger shared by the use cases of one service.
type Instrument struct {
	tel     observability.Observability
	log     observability.Logger
	service string

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstrument(tel observability.Observability, service string) *Instrument {
	tel = observability.OrNop(tel)
	m := tel.Metrics()
	return &Instrument{
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", service)),
		service:      service,
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (i *Instrument) Logger() observability.Logger { return i.log }

func (i *Instrument) Metrics() observability.Metrics { return i.tel.Metrics() }

// Begin starts a span named after the use case and returns the call tracker.
// Callers must defer call.End(err).
func (i *Instrument) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Call) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := i.tel.Tracer().Start(ctx, spanPrefix+spanName, attrs...)
	return ctx, &Call{
		inst:    i,
		ctx:     ctx,
		span:    span,
		useCase: useCase,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
		logger:  logctx.FromOr(ctx, i.log).With(observability.F("use_case", useCase)),
	}
}

// External records one call to a dependency such as the gateway or the event bus.
func (i *Instrument) External(peer, endpoint, outcome string, started time.Time) {
	i.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	i.extHistogram.Observe(time.Since(started).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}

// Call tracks the outcome of one use case execution.
type Call struct {
	inst    *Instrument
	ctx     context.Context
	span    trace.Span
	useCase string
	start   time.Time
	outcome string
	status  string
	logger  observability.Logger
	fields  []observability.Field
}

// Fail marks the call as failed with a stable status code such as REPO_INSERT_FAILED.
func (c *Call) Fail(status string) {
	c.outcome, c.status = "error", status
}

// Status overrides the status text of a successful call (e.g. IDEMPOTENT_REPLAY).
func (c *Call) Status(status string) {
	c.status = status
}

// With adds fields to the final use_case_done line.
func (c *Call) With(fields ...observability.Field) {
	c.fields = append(c.fields, fields...)
}

func (c *Call) Span() trace.Span { return c.span }

func (c *Call) Logger() observability.Logger { return c.logger }

func (c *Call) End(err error) {
	lat := time.Since(c.start).Seconds()

	if err != nil && c.outcome == "success" {
		c.outcome = "error"
		if c.status == "OK" {
			c.status = string(apperr.KindOf(err))
		}
	}

	if c.span != nil {
		if err != nil {
			c.span.RecordError(err)
			c.span.SetStatus(codes.Error, c.status)
		} else {
			c.span.SetStatus(codes.Ok, c.status)
		}
		c.span.End()
	}

	c.inst.reqCounter.Add(1,
		observability.L("use_case", c.useCase),
		observability.L("outcome", c.outcome),
	)
	c.inst.durHistogram.Observe(lat, observability.L("use_case", c.useCase))

	fields := []observability.Field{
		observability.F("outcome", c.outcome),
		observability.F("status", c.status),
		observability.F("latency_seconds", lat),
	}
	fields = append(fields, observability.TraceFields(c.ctx)...)
	fields = append(fields, c.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	c.logger.Info("use_case_done", fields...)
}

type IDGenerator interface {
	NewID() string
}

// Clock returns the current time; tests pin it.
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
