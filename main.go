package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/discount"
	appinventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/config"
	dompayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/gateway/sandbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/gateway/stripegw"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/id"
	inventoryworker "github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/inventory/worker"
	kafkarelay "github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/kafka"
	infraobs "github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/zaplogger"
	orderworker "github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/order/worker"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/outbox"
	paymentworker "github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/payment/worker"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-fulfillment/internal/presentation/http"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	if err := run(cfg, baseLogger); err != nil {
		baseLogger.Error("service_exit", zap.Error(err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, baseLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zaplogger.New(baseLogger)
	oteltrace.InstallPropagator()
	registry := prometrics.New("")
	tel := infraobs.FromRegistry(oteltrace.New(cfg.ServiceName), logger, registry)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	// In-memory event bus; the Kafka relay forwards every event when brokers are set.
	bus := outbox.NewBus(logger, outbox.Options{})
	bus.Start(ctx)
	defer bus.Stop(context.Background())

	if len(cfg.KafkaBrokers) > 0 {
		relay := kafkarelay.NewRelay(kafkarelay.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic), cfg.ServiceName, tel)
		relay.Register(bus)
		defer func() { _ = relay.Close() }()
		logger.Info("kafka_relay_enabled", observability.F("topic", cfg.KafkaTopic))
	}

	gateway, webhooks, err := newGateway(cfg)
	if err != nil {
		return err
	}

	ids := id.UUID{}
	var clock application.Clock

	ledger := appinventory.NewLedger(store.inventory, ids, clock, bus, tel)
	engine := discount.NewEngine(store.coupons, ids, clock, tel)
	payments := apppayment.NewAdapter(store.payments, gateway, ids, clock, bus, apppayment.Options{
		GatewayTimeout: cfg.GatewayTimeout,
		AutoCapture:    cfg.AutoCapture,
	}, tel)

	pricing := apporder.DefaultPricing()
	pricing.TaxRate = cfg.TaxRate
	pricing.FlatShipping = cfg.ShippingFlatFee
	pricing.FreeShippingThreshold = cfg.FreeShippingThreshold
	pricing.Currency = cfg.Currency

	orders := apporder.NewService(apporder.Deps{
		Orders:      store.orders,
		Sequencer:   store.sequencer,
		Catalog:     store.catalog,
		Cart:        store.cart,
		Inventory:   ledger,
		Discounts:   engine,
		Payments:    payments,
		Idempotency: store.idempotency,
		Publisher:   bus,
		IDs:         ids,
		Clock:       clock,
	}, apporder.Config{
		Pricing:      pricing,
		CouponPolicy: apporder.CouponPolicy(cfg.CouponPolicy),
		NumberPrefix: cfg.OrderNumberPrefix,
		PendingTTL:   cfg.PendingOrderTTL,
	}, tel)

	if cfg.SeedDemo {
		if err := seedDemo(ctx, store, ledger, engine); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		logger.Info("demo_data_seeded")
	}

	orderworker.New(bus, orders, logger).Start()

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		paymentworker.New(payments, cfg.ReconcileInterval, 0, logger).Run(ctx)
	}()
	go func() {
		defer workers.Done()
		inventoryworker.New(orders, inventoryworker.Options{
			Interval: cfg.SweepInterval,
			TTL:      cfg.ReservationTTL,
		}, logger).Run(ctx)
	}()

	handler := httppresentation.NewHandler(orders, payments, webhooks, registry.Handler(), tel)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("store", cfg.Store),
			observability.F("gateway", gateway.Name()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			stop()
			workers.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		logger.Info("http_server_stopped")
	}
	workers.Wait()
	return nil
}

func newGateway(cfg config.Config) (dompayment.Gateway, dompayment.NotificationParser, error) {
	switch cfg.PaymentGateway {
	case config.GatewayStripe:
		gw, err := stripegw.New(stripegw.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			BaseURL:       cfg.StripeBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return gw, stripegw.NewWebhookParser(cfg.StripeWebhookSecret), nil
	default:
		gw := sandbox.New()
		gw.SetSuccessRate(cfg.SandboxSuccessRate)
		return gw, sandbox.NotificationParser{}, nil
	}
}
