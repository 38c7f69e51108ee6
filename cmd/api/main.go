package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/api/routes"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/payments"
	stripewebhook "github.com/angelmondragon/storefront/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/redis"
	"github.com/angelmondragon/storefront/pkg/stripe"
)

const (
	shutdownTimeout   = 15 * time.Second
	webhookDedupeTTL  = 72 * time.Hour
	readHeaderTimeout = 5 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(promRegistry)

	conn := dbClient.DB()
	catalogRepo := catalog.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	cartService, err := cart.NewService(cart.NewRepository(conn), catalogRepo, dbClient, logg)
	if err != nil {
		return err
	}

	providers := []payments.Provider{payments.NewManualProvider()}
	var stripeClient *stripe.Client
	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		stripeClient, err = stripe.NewClient(bootCtx, cfg.Stripe, logg)
		if err != nil {
			return err
		}
		stripeProvider, err := payments.NewStripeProvider(stripeClient)
		if err != nil {
			return err
		}
		providers = append(providers, stripeProvider)
	} else {
		logg.Warn(bootCtx, "stripe api key not set; card payments disabled")
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:      orderRepo,
		Tx:        dbClient,
		Outbox:    emitter,
		Providers: providers,
		Metrics:   orderMetrics,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:     orderRepo,
		Catalog:  catalogRepo,
		Cart:     cartService,
		Tx:       dbClient,
		Outbox:   emitter,
		Refunder: paymentsService,
		Pricing:  orders.PricingFromConfig(cfg.Checkout),
		Metrics:  orderMetrics,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	deps := routes.Dependencies{
		DB:          dbClient,
		Redis:       redisClient,
		Sessions:    sessionManager,
		Cart:        cartService,
		Orders:      ordersService,
		Payments:    paymentsService,
		HTTPMetrics: metrics.NewHTTPMetrics(promRegistry),
		Gatherer:    promRegistry,
	}
	if stripeClient != nil {
		deps.StripeClient = stripeClient
		deps.StripeWebhook, err = stripewebhook.NewService(stripewebhook.ServiceParams{Payments: paymentsService, Logger: logg})
		if err != nil {
			return err
		}
		deps.StripeWebhookGuard, err = stripewebhook.NewIdempotencyGuard(redisClient, webhookDedupeTTL, "stripe")
		if err != nil {
			return err
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
