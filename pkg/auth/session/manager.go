// Package session keeps the server-side half of an access token: a redis
// entry keyed by the token's jti that must exist for the token to be honored.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront/pkg/config"
)

// Store is the redis surface sessions need; *redis.Client satisfies it.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is what the auth middleware consults per request.
type AccessSessionChecker interface {
	// SessionOwner returns the user the session was registered for and
	// whether it is still live.
	SessionOwner(ctx context.Context, accessID string) (userID string, live bool, err error)
}

type Manager struct {
	store Store
	ttl   time.Duration
}

var _ AccessSessionChecker = (*Manager)(nil)

// NewManager ties session lifetime to the access token TTL.
func NewManager(store Store, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	ttl := cfg.AccessTTL()
	if ttl <= 0 {
		return nil, errors.New("access ttl must be positive")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

func (m *Manager) key(accessID string) (string, error) {
	id := strings.TrimSpace(accessID)
	if id == "" {
		return "", errors.New("access id is required")
	}
	return m.store.AccessSessionKey(id), nil
}

// Register opens a session for accessID owned by userID.
func (m *Manager) Register(ctx context.Context, accessID, userID string) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, key, userID, m.ttl); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

// Revoke ends the session; the token stops working on its next request.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) SessionOwner(ctx context.Context, accessID string) (string, bool, error) {
	key, err := m.key(accessID)
	if err != nil {
		return "", false, err
	}
	owner, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("lookup session: %w", err)
	}
	return owner, true, nil
}

// NewAccessID returns a fresh jti.
func NewAccessID() string {
	return uuid.NewString()
}
