package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/catalog/catalogtest"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/payments"
	stripewebhook "github.com/angelmondragon/storefront/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/contracts"
	"github.com/angelmondragon/storefront/pkg/db/dbtest"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/redis"
)

type testServer struct {
	handler http.Handler
	cfg     *config.Config
	tote    catalogtest.Seeded
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	cfg := &config.Config{
		App:          config.AppConfig{Env: "test"},
		JWT:          config.JWTConfig{Secret: "router-secret", Issuer: "storefront-test", ExpirationMinutes: 10},
		FeatureFlags: config.FeatureFlagsConfig{SessionCheck: false},
		Idempotency:  config.IdempotencyConfig{TTL: time.Hour},
		RateLimit:    config.RateLimitConfig{Window: time.Minute, WriteLimit: 100, RefundLimit: 5},
	}

	client := dbtest.Client(t)
	conn := client.DB()
	mr := miniredis.RunT(t)
	rdb := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rdb.Close() })

	catalogRepo := catalog.NewRepository(conn)
	carts, err := cart.NewService(cart.NewRepository(conn), catalogRepo, client, nil)
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	orderRepo := orders.NewRepository(conn)

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:      orderRepo,
		Tx:        client,
		Outbox:    emitter,
		Providers: []payments.Provider{payments.NewManualProvider()},
	})
	require.NoError(t, err)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orderRepo,
		Catalog:  catalogRepo,
		Cart:     carts,
		Tx:       client,
		Outbox:   emitter,
		Refunder: paymentsSvc,
		Pricing:  orders.Pricing{Currency: "usd", TaxRate: decimal.Zero, ShippingFeeCents: 500},
	})
	require.NoError(t, err)
	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{Payments: paymentsSvc})
	require.NoError(t, err)
	guard, err := stripewebhook.NewIdempotencyGuard(rdb, time.Hour, "stripe")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	handler := NewRouter(cfg, nil, Dependencies{
		DB:                 client,
		Redis:              rdb,
		Cart:               carts,
		Orders:             ordersSvc,
		Payments:           paymentsSvc,
		StripeWebhook:      webhookSvc,
		StripeWebhookGuard: guard,
		HTTPMetrics:        metrics.NewHTTPMetrics(reg),
		Gatherer:           reg,
	})

	return testServer{
		handler: handler,
		cfg:     cfg,
		tote:    catalogtest.Seed(t, conn, catalogtest.Product{Name: "Canvas Tote", PriceCents: 2499, Available: 10}),
	}
}

func (s testServer) token(t *testing.T, userID uuid.UUID, role enums.Role) string {
	t.Helper()
	token, err := auth.MintAccessToken(s.cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func (s testServer) do(method, path, token, idempotencyKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/live", "", "", "").Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/ready", "", "", "").Code)

	rec := srv.do(http.MethodGet, "/metrics", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/health/live"`)
}

func TestAPIRequiresToken(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/api/user/cart", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = srv.do(http.MethodPost, "/api/webhooks/stripe", "", "", "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "webhooks skip auth but still need a signature")
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	customer := srv.token(t, uuid.New(), enums.RoleCustomer)
	rec := srv.do(http.MethodGet, "/api/admin/orders/"+uuid.NewString(), customer, "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := srv.token(t, uuid.New(), enums.RoleAdmin)
	rec = srv.do(http.MethodGet, "/api/admin/orders/"+uuid.NewString(), admin, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartToCancelledOrder(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	userID := uuid.New()
	token := srv.token(t, userID, enums.RoleCustomer)

	upsert := `{"productId":"` + srv.tote.ProductID.String() + `","variantId":"` + srv.tote.VariantID.String() + `","quantity":2,"mode":"set"}`
	rec := srv.do(http.MethodPost, "/api/user/cart", token, "", upsert)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(http.MethodGet, "/api/user/cart", token, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cartBody contracts.CartResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cartBody))
	require.Len(t, cartBody.Items, 1)
	assert.Equal(t, 2, cartBody.Items[0].Quantity)
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	create := `{
		"items":[{"productId":"` + srv.tote.ProductID.String() + `","variantId":"` + srv.tote.VariantID.String() + `","quantity":2}],
		"shippingAddress":{"fullName":"Ada","line1":"1 Main","city":"Austin","postalCode":"78701","country":"US"},
		"contact":{"email":"ada@example.com"},
		"paymentMethod":"cod"
	}`
	rec = srv.do(http.MethodPost, "/api/user/orders", token, "", create)
	require.Equal(t, http.StatusBadRequest, rec.Code, "order creation requires an Idempotency-Key")

	rec = srv.do(http.MethodPost, "/api/user/orders", token, "order-1", create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order contracts.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&order))
	assert.Equal(t, int64(2*2499+500), order.TotalCents)
	assert.Equal(t, enums.OrderStatusPending, order.Status)

	replay := srv.do(http.MethodPost, "/api/user/orders", token, "order-1", create)
	require.Equal(t, http.StatusCreated, replay.Code)
	var replayed contracts.Order
	require.NoError(t, json.NewDecoder(replay.Body).Decode(&replayed))
	assert.Equal(t, order.ID, replayed.ID, "replay must not create a second order")

	rec = srv.do(http.MethodGet, "/api/user/orders", token, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list contracts.OrderList
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Orders, 1)

	rec = srv.do(http.MethodPatch, "/api/user/orders/"+order.ID.String()+"/cancel", token, "cancel-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cancelled contracts.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cancelled))
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	other := srv.token(t, uuid.New(), enums.RoleCustomer)
	rec = srv.do(http.MethodPatch, "/api/user/orders/"+order.ID.String()+"/cancel", other, "cancel-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "orders are scoped to their owner")
}
