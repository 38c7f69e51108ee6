package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/storefront/api/controllers"
	admincontrollers "github.com/angelmondragon/storefront/api/controllers/admin"
	cartcontrollers "github.com/angelmondragon/storefront/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/storefront/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/storefront/api/controllers/webhooks"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/payments"
	stripewebhook "github.com/angelmondragon/storefront/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/redis"
	"github.com/angelmondragon/storefront/pkg/stripe"
)

// Dependencies is everything the router mounts. Sessions may be nil when
// session checks are disabled and Gatherer may be nil to skip /metrics.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    *redis.Client
	Sessions session.AccessSessionChecker

	Cart     cart.Service
	Orders   orders.Service
	Payments payments.Service

	StripeClient       *stripe.Client
	StripeWebhook      *stripewebhook.Service
	StripeWebhookGuard *stripewebhook.IdempotencyGuard

	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
}

// redisStore is the slice of the redis client the /api middleware needs.
type redisStore interface {
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)
	if deps.HTTPMetrics != nil {
		r.Use(middleware.Metrics(deps.HTTPMetrics))
	}

	var sessions session.AccessSessionChecker
	if cfg.FeatureFlags.SessionCheck {
		sessions = deps.Sessions
	}
	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["db"] = deps.DB
	}
	var store redisStore
	if deps.Redis != nil {
		store = deps.Redis
		checks["redis"] = deps.Redis
	}
	writePolicy := middleware.NewRateLimitPolicy("writes", cfg.RateLimit.Window, cfg.RateLimit.WriteLimit)
	refundPolicy := middleware.NewRateLimitPolicy("refunds", cfg.RateLimit.Window, cfg.RateLimit.RefundLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, checks, logg))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		if deps.StripeWebhook != nil && deps.StripeWebhookGuard != nil {
			r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, deps.StripeWebhookGuard, logg))
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessions, logg))
			r.Use(middleware.RateLimit(writePolicy, store, logg))
			r.Use(middleware.Idempotency(store, cfg.Idempotency.TTL, logg))

			r.Route("/user/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
				r.Post("/", cartcontrollers.CartUpsert(deps.Cart, logg))
				r.Delete("/", cartcontrollers.CartRemove(deps.Cart, logg))
				r.Post("/clear", cartcontrollers.CartClear(deps.Cart, logg))
			})

			r.Route("/user/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Post("/", ordercontrollers.Create(deps.Orders, logg))
				r.Get("/returns", ordercontrollers.Returns(deps.Orders, logg))
				r.Patch("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
				r.Post("/{orderId}/return", ordercontrollers.Return(deps.Orders, logg))
				r.Get("/{orderId}/verify-payment", ordercontrollers.VerifyPayment(deps.Payments, logg))
			})

			r.Route("/payment", func(r chi.Router) {
				r.Post("/create-intent", paymentcontrollers.CreateIntent(deps.Payments, logg))
				r.With(middleware.RateLimit(refundPolicy, store, logg)).
					Post("/refund", paymentcontrollers.Refund(deps.Payments, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
				r.Get("/orders/{orderId}", admincontrollers.OrderDetail(deps.Orders, logg))
				r.Patch("/orders/{orderId}", admincontrollers.OrderUpdate(deps.Orders, logg))
				r.Post("/returns/{returnId}/resolve", admincontrollers.ResolveReturn(deps.Orders, logg))
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront-api")
}
