// Package config reads the service settings from the environment. A .env file
// in the working directory is loaded first when present; variables already set
// in the environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	GatewaySandbox = "sandbox"
	GatewayStripe  = "stripe"

	CouponStrict  = "strict"
	CouponLenient = "lenient"
)

type Config struct {
	HTTPAddr    string
	ServiceName string
	Env         string
	LogLevel    string
	LogFile     string

	Store             string
	PostgresDSN       string
	PostgresBootstrap bool
	RedisAddr         string
	RedisPassword     string
	KafkaBrokers      []string
	KafkaTopic        string

	PaymentGateway      string
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string
	GatewayTimeout      time.Duration
	AutoCapture         bool
	SandboxSuccessRate  float64

	CouponPolicy          string
	TaxRate               decimal.Decimal
	ShippingFlatFee       int64
	FreeShippingThreshold int64
	Currency              string
	OrderNumberPrefix     string

	ReconcileInterval time.Duration
	ReservationTTL    time.Duration
	PendingOrderTTL   time.Duration
	SweepInterval     time.Duration

	// SeedDemo loads a handful of variants, stock and coupons on start.
	SeedDemo bool
}

// Load reads .env (when present) and the environment. Malformed numbers and
// durations are reported together rather than silently defaulted.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the config from a lookup function, which lets tests avoid the
// process environment.
func FromEnv(lookup func(string) string) (Config, error) {
	p := parser{lookup: lookup}
	cfg := Config{
		HTTPAddr:    p.str("HTTP_ADDR", ":8080"),
		ServiceName: p.str("SERVICE_NAME", "minishop-fulfillment"),
		Env:         p.str("ENV", "dev"),
		LogLevel:    p.str("LOG_LEVEL", "info"),
		LogFile:     p.str("LOG_FILE", ""),

		Store:             strings.ToLower(p.str("STORE", StoreMemory)),
		PostgresDSN:       p.str("POSTGRES_DSN", ""),
		PostgresBootstrap: p.boolean("POSTGRES_BOOTSTRAP", true),
		RedisAddr:         p.str("REDIS_ADDR", ""),
		RedisPassword:     p.str("REDIS_PASSWORD", ""),
		KafkaBrokers:      splitCSV(p.str("KAFKA_BROKERS", "")),
		KafkaTopic:        p.str("KAFKA_TOPIC", "fulfillment.events"),

		PaymentGateway:      strings.ToLower(p.str("PAYMENT_GATEWAY", GatewaySandbox)),
		StripeSecretKey:     p.str("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: p.str("STRIPE_WEBHOOK_SECRET", ""),
		StripeBaseURL:       p.str("STRIPE_BASE_URL", ""),
		GatewayTimeout:      p.duration("GATEWAY_TIMEOUT", 5*time.Second),
		AutoCapture:         p.boolean("PAYMENT_AUTO_CAPTURE", true),
		SandboxSuccessRate:  p.float("SANDBOX_SUCCESS_RATE", 1),

		CouponPolicy:          strings.ToLower(p.str("COUPON_POLICY", CouponStrict)),
		TaxRate:               p.decimal("TAX_RATE", decimal.RequireFromString("0.08")),
		ShippingFlatFee:       p.int64("SHIPPING_FLAT_FEE", 599),
		FreeShippingThreshold: p.int64("FREE_SHIPPING_THRESHOLD", 5000),
		Currency:              strings.ToUpper(p.str("CURRENCY", "USD")),
		OrderNumberPrefix:     p.str("ORDER_NUMBER_PREFIX", "ORD"),

		ReconcileInterval: p.duration("RECONCILE_INTERVAL", 30*time.Second),
		ReservationTTL:    p.duration("RESERVATION_TTL", 30*time.Minute),
		PendingOrderTTL:   p.duration("PENDING_ORDER_TTL", time.Hour),
		SweepInterval:     p.duration("SWEEP_INTERVAL", time.Minute),

		SeedDemo: p.boolean("SEED_DEMO", false),
	}
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("config: POSTGRES_DSN is required when STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE %q", c.Store))
	}
	switch c.PaymentGateway {
	case GatewaySandbox:
		if c.SandboxSuccessRate < 0 || c.SandboxSuccessRate > 1 {
			errs = append(errs, fmt.Errorf("config: SANDBOX_SUCCESS_RATE %v is outside [0,1]", c.SandboxSuccessRate))
		}
	case GatewayStripe:
		if c.StripeSecretKey == "" {
			errs = append(errs, errors.New("config: STRIPE_SECRET_KEY is required when PAYMENT_GATEWAY=stripe"))
		}
		if c.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("config: STRIPE_WEBHOOK_SECRET is required when PAYMENT_GATEWAY=stripe"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown PAYMENT_GATEWAY %q", c.PaymentGateway))
	}
	if c.CouponPolicy != CouponStrict && c.CouponPolicy != CouponLenient {
		errs = append(errs, fmt.Errorf("config: COUPON_POLICY must be %q or %q, got %q", CouponStrict, CouponLenient, c.CouponPolicy))
	}
	if c.TaxRate.IsNegative() {
		errs = append(errs, errors.New("config: TAX_RATE must not be negative"))
	}
	if c.ShippingFlatFee < 0 || c.FreeShippingThreshold < 0 {
		errs = append(errs, errors.New("config: shipping amounts must not be negative"))
	}
	if c.PendingOrderTTL < 0 {
		errs = append(errs, errors.New("config: PENDING_ORDER_TTL must not be negative"))
	}
	if len(c.Currency) != 3 {
		errs = append(errs, fmt.Errorf("config: CURRENCY %q is not an ISO-4217 code", c.Currency))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("config: KAFKA_TOPIC is required with KAFKA_BROKERS"))
	}
	return errors.Join(errs...)
}

type parser struct {
	lookup func(string) string
	errs   []error
}

func (p *parser) str(k, def string) string {
	if v := strings.TrimSpace(p.lookup(k)); v != "" {
		return v
	}
	return def
}

func (p *parser) boolean(k string, def bool) bool {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", k, err))
		return def
	}
	return b
}

func (p *parser) int64(k string, def int64) int64 {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", k, err))
		return def
	}
	return n
}

func (p *parser) float(k string, def float64) float64 {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", k, err))
		return def
	}
	return f
}

func (p *parser) duration(k string, def time.Duration) time.Duration {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", k, err))
		return def
	}
	return d
}

func (p *parser) decimal(k string, def decimal.Decimal) decimal.Decimal {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", k, err))
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
