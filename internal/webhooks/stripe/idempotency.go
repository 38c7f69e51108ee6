package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// eventMarker is the slice of the redis client the guard needs.
type eventMarker interface {
	MarkOnce(ctx context.Context, scope, id string, ttl time.Duration) (bool, error)
	WebhookKey(scope, id string) string
	Del(ctx context.Context, keys ...string) error
}

// IdempotencyGuard drops Stripe deliveries whose event id was already handled.
type IdempotencyGuard struct {
	store eventMarker
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store eventMarker, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("event marker is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark records eventID and reports whether it had been seen before.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	first, err := g.store.MarkOnce(ctx, g.scope, eventID, g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook event: %w", err)
	}
	return !first, nil
}

// Delete forgets eventID so a redelivery is processed again.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.WebhookKey(g.scope, eventID))
}
