package config

import (
	"strings"
	"testing"
	"time"
)

func lookup(env map[string]string) func(string) string {
	return func(k string) string { return env[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := FromEnv(lookup(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store != StoreMemory || cfg.PaymentGateway != GatewaySandbox {
		t.Fatalf("expected memory store with sandbox gateway, got %s/%s", cfg.Store, cfg.PaymentGateway)
	}
	if cfg.CouponPolicy != CouponStrict {
		t.Fatalf("expected strict coupon policy, got %s", cfg.CouponPolicy)
	}
	if cfg.TaxRate.String() != "0.08" {
		t.Fatalf("expected tax rate 0.08, got %s", cfg.TaxRate)
	}
	if cfg.GatewayTimeout != 5*time.Second {
		t.Fatalf("expected 5s gateway timeout, got %s", cfg.GatewayTimeout)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no kafka brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := FromEnv(lookup(map[string]string{
		"STORE":                   "Postgres",
		"POSTGRES_DSN":            "postgres://app@localhost/shop",
		"KAFKA_BROKERS":           "k1:9092, k2:9092,",
		"COUPON_POLICY":           "LENIENT",
		"TAX_RATE":                "0.2",
		"FREE_SHIPPING_THRESHOLD": "10000",
		"RESERVATION_TTL":         "10m",
		"PENDING_ORDER_TTL":       "2h",
		"currency":                "ignored",
		"CURRENCY":                "eur",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store != StorePostgres {
		t.Fatalf("expected postgres store, got %s", cfg.Store)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("expected two trimmed brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.CouponPolicy != CouponLenient {
		t.Fatalf("expected lenient policy, got %s", cfg.CouponPolicy)
	}
	if cfg.TaxRate.String() != "0.2" || cfg.FreeShippingThreshold != 10000 {
		t.Fatalf("unexpected pricing: %s / %d", cfg.TaxRate, cfg.FreeShippingThreshold)
	}
	if cfg.ReservationTTL != 10*time.Minute {
		t.Fatalf("expected 10m ttl, got %s", cfg.ReservationTTL)
	}
	if cfg.PendingOrderTTL != 2*time.Hour {
		t.Fatalf("expected 2h pending order ttl, got %s", cfg.PendingOrderTTL)
	}
	if cfg.Currency != "EUR" {
		t.Fatalf("expected EUR, got %s", cfg.Currency)
	}
}

func TestFromEnvRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "postgres without dsn", env: map[string]string{"STORE": "postgres"}, want: "POSTGRES_DSN"},
		{name: "unknown store", env: map[string]string{"STORE": "mongo"}, want: "unknown STORE"},
		{name: "stripe without keys", env: map[string]string{"PAYMENT_GATEWAY": "stripe"}, want: "STRIPE_SECRET_KEY"},
		{name: "bad policy", env: map[string]string{"COUPON_POLICY": "maybe"}, want: "COUPON_POLICY"},
		{name: "bad duration", env: map[string]string{"GATEWAY_TIMEOUT": "soon"}, want: "GATEWAY_TIMEOUT"},
		{name: "bad tax rate", env: map[string]string{"TAX_RATE": "eight"}, want: "TAX_RATE"},
		{name: "negative tax", env: map[string]string{"TAX_RATE": "-0.1"}, want: "TAX_RATE"},
		{name: "success rate range", env: map[string]string{"SANDBOX_SUCCESS_RATE": "1.5"}, want: "SANDBOX_SUCCESS_RATE"},
		{name: "negative pending ttl", env: map[string]string{"PENDING_ORDER_TTL": "-1m"}, want: "PENDING_ORDER_TTL"},
		{name: "bad bool", env: map[string]string{"SEED_DEMO": "sometimes"}, want: "SEED_DEMO"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := FromEnv(lookup(tt.env))
			if err == nil {
				t.Fatalf("expected error mentioning %s", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}
