package kvstore_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/kvstore"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*kvstore.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := kvstore.NewRedisStore(kvstore.RedisConfig{
		Addr:      mr.Addr(),
		KeyPrefix: "warden:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestRedisStore_Lifecycle(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Set(ctx, "revoked:token:abc", []byte("1"), time.Minute))

	// Keys are namespaced in Redis but not in the API
	assert.True(t, mr.Exists("warden:revoked:token:abc"))

	val, err := store.Get(ctx, "revoked:token:abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), val)

	require.NoError(t, store.Delete(ctx, "revoked:token:abc"))
	_, err = store.Get(ctx, "revoked:token:abc")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 10*time.Second))

	mr.FastForward(9 * time.Second)
	_, err := store.Get(ctx, "k")
	assert.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestRedisStore_KeysAndDeleteByPattern(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	for _, key := range []string{"history:u1", "history:u2", "lockout:email:a"} {
		require.NoError(t, store.Set(ctx, key, []byte("x"), time.Hour))
	}
	// A key outside the prefix must never be touched
	require.NoError(t, mr.Set("other-app:history:u3", "x"))

	keys, err := store.Keys(ctx, "history:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"history:u1", "history:u2"}, keys)

	deleted, err := store.DeleteByPattern(ctx, "history:*")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := store.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"lockout:email:a"}, remaining)
	assert.True(t, mr.Exists("other-app:history:u3"))
}

func TestRedisStore_UnreachableReturnsError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	store, err := kvstore.NewRedisStore(kvstore.RedisConfig{
		Addr:        mr.Addr(),
		DialTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	mr.Close()

	_, err = store.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, kvstore.ErrNotFound)
	assert.Error(t, store.Ping(ctx))
}

func TestNewRedisStore_RequiresAddr(t *testing.T) {
	_, err := kvstore.NewRedisStore(kvstore.RedisConfig{})
	assert.Error(t, err)
}
