package cartcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/pkg/redis"
)

func exerciseStore(t *testing.T, store SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Load(ctx, "user-1")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, store.Save(ctx, "user-1", []byte(`{"version":1}`)))
	require.NoError(t, store.Save(ctx, "user-1", []byte(`{"version":1,"state":{"items":[]}}`)))
	data, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"state":{"items":[]}}`, string(data))

	require.NoError(t, store.Delete(ctx, "user-1"))
	require.NoError(t, store.Delete(ctx, "user-1"))
	_, err = store.Load(ctx, "user-1")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseStore(t, store)

	require.NoError(t, store.Save(context.Background(), "../escape/key", []byte("{}")))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cart-.._escape_key.json", entries[0].Name())
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape"))
	assert.True(t, os.IsNotExist(err))

	_, err = NewFileStore("")
	require.Error(t, err)
}

func TestRedisStoreWithMiniredis(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client, time.Hour)
	require.NoError(t, err)
	exerciseStore(t, store)

	require.NoError(t, store.Save(context.Background(), "user-2", []byte("{}")))
	require.True(t, mr.Exists("sf:cartcache:user-2"))
	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("sf:cartcache:user-2"))

	_, err = NewRedisStore(nil, time.Hour)
	require.Error(t, err)
}
