package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkgredis "github.com/angelmondragon/storefront/pkg/redis"
)

func TestRateLimitPerCaller(t *testing.T) {
	mr := miniredis.RunT(t)
	client := pkgredis.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	handler := RateLimit(NewRateLimitPolicy("writes", time.Minute, 2), client, nil)(okHandler())
	alice, bob := uuid.NewString(), uuid.NewString()
	send := func(method, user string) int {
		req := asUser(httptest.NewRequest(method, "/api/user/cart", nil), user)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if got := send(http.MethodPost, alice); got != http.StatusOK {
			t.Fatalf("write %d: expected 200 got %d", i, got)
		}
	}
	if got := send(http.MethodPost, alice); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", got)
	}
	if got := send(http.MethodGet, alice); got != http.StatusOK {
		t.Fatalf("reads are not limited, got %d", got)
	}
	if got := send(http.MethodPost, bob); got != http.StatusOK {
		t.Fatalf("other callers are unaffected, got %d", got)
	}

	mr.FastForward(2 * time.Minute)
	if got := send(http.MethodPost, alice); got != http.StatusOK {
		t.Fatalf("expected window reset, got %d", got)
	}
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("writes", time.Minute, 0), nil, nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
