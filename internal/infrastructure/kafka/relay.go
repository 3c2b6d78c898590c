package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	peerKafka      = "kafka"
	eventVersion   = 1
	defaultTimeout = 5 * time.Second

	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // aggregate id, also the message key
	Payload       json.RawMessage `json:"payload"`
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a synchronous writer hashing on the message key, so every
// event of one order lands on the same partition in order.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Relay forwards every bus event to Kafka inside a JSON Envelope.
type Relay struct {
	w        MessageWriter
	producer string
	timeout  time.Duration
	inst     *application.Instrument
	now      func() time.Time
}

func NewRelay(w MessageWriter, producer string, tel observability.Observability) *Relay {
	return &Relay{
		w:        w,
		producer: producer,
		timeout:  defaultTimeout,
		inst:     application.NewInstrument(tel, "kafka-relay"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register subscribes the relay to every event on the bus.
func (r *Relay) Register(sub domoutbox.Subscriber) {
	sub.Subscribe(outbox.AllEvents, r.Handle)
}

func (r *Relay) Handle(ctx context.Context, e domoutbox.Event) error {
	msg, err := r.message(ctx, e)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err = r.w.WriteMessages(wctx, msg)
	logger := logctx.FromOr(ctx, r.inst.Logger())
	if err != nil {
		r.inst.External(peerKafka, "write", "error", start)
		logger.Warn("kafka_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
		return fmt.Errorf("kafka relay: write %s: %w", e.EventName(), err)
	}
	r.inst.External(peerKafka, "write", "success", start)
	logger.Debug("kafka_event_published", observability.F("event", e.EventName()))
	return nil
}

func (r *Relay) Close() error {
	return r.w.Close()
}

func (r *Relay) message(ctx context.Context, e domoutbox.Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka relay: encode %s: %w", e.EventName(), err)
	}

	key := domoutbox.Key(e)
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     e.EventName(),
		EventVersion:  eventVersion,
		OccurredAt:    r.now(),
		Producer:      r.producer,
		CorrelationID: key,
		Payload:       payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		env.TraceID = sc.TraceID().String()
	}

	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka relay: encode envelope: %w", err)
	}

	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(env.EventType)},
		{Key: HeaderEventVersion, Value: []byte(fmt.Sprint(eventVersion))},
	}
	carrier := headerCarrier{headers: &headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
		Time:    env.OccurredAt,
	}, nil
}

// headerCarrier adapts kafka headers to propagation.TextMapCarrier.
type headerCarrier struct{ headers *[]kafka.Header }

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}
