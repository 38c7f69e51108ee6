package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/pkg/config"
	redisclient "github.com/angelmondragon/storefront/pkg/redis"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return fmt.Sprintf("sess:%s", accessID)
}

func TestManagerRegisterAndRevoke(t *testing.T) {
	store := newMockStore()
	manager, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 60})
	require.NoError(t, err)
	ctx := context.Background()

	if err := manager.Register(ctx, "access-123", "user-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if store.ttls["sess:access-123"] != time.Hour {
		t.Fatalf("expected session ttl to follow access ttl")
	}

	owner, ok, err := manager.SessionOwner(ctx, "access-123")
	if err != nil || !ok || owner != "user-1" {
		t.Fatalf("expected live session for user-1, got owner=%q ok=%v err=%v", owner, ok, err)
	}

	if err := manager.Revoke(ctx, "access-123"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, ok, err = manager.SessionOwner(ctx, "access-123")
	if err != nil || ok {
		t.Fatalf("expected revoked session, got ok=%v err=%v", ok, err)
	}
}

func TestManagerRejectsEmptyAccessID(t *testing.T) {
	store := newMockStore()
	manager := &Manager{store: store, ttl: time.Hour}
	if err := manager.Register(context.Background(), " ", "user"); err == nil {
		t.Fatal("expected error for empty access id")
	}
	if _, _, err := manager.SessionOwner(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty access id")
	}
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(nil, config.JWTConfig{ExpirationMinutes: 5})
	require.Error(t, err)
	_, err = NewManager(newMockStore(), config.JWTConfig{})
	require.Error(t, err)
}

func TestManagerAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisclient.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	manager, err := NewManager(client, config.JWTConfig{ExpirationMinutes: 1})
	require.NoError(t, err)

	ctx := context.Background()
	accessID := NewAccessID()
	require.NoError(t, manager.Register(ctx, accessID, "user-1"))
	require.Equal(t, time.Minute, mr.TTL("sf:session:access:"+accessID))

	mr.FastForward(2 * time.Minute)
	_, ok, err := manager.SessionOwner(ctx, accessID)
	require.NoError(t, err)
	require.False(t, ok)
}
