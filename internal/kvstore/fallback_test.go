package kvstore_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemoteDown = errors.New("connection refused")

// flakyStore wraps a MemoryStore and fails every call while down is set
type flakyStore struct {
	*kvstore.MemoryStore
	down  atomic.Bool
	calls atomic.Int32
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: kvstore.NewMemoryStore()}
}

func (f *flakyStore) Backend() string { return "redis" }

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls.Add(1)
	if f.down.Load() {
		return nil, errRemoteDown
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.calls.Add(1)
	if f.down.Load() {
		return errRemoteDown
	}
	return f.MemoryStore.Set(ctx, key, value, ttl)
}

func (f *flakyStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.calls.Add(1)
	if f.down.Load() {
		return nil, errRemoteDown
	}
	return f.MemoryStore.Keys(ctx, pattern)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallbackStore_UsesRemoteWhenHealthy(t *testing.T) {
	remote := newFlakyStore()
	local := kvstore.NewMemoryStore()
	store := kvstore.NewFallbackStore(remote, local, kvstore.DefaultBreakerConfig(), discardLogger())
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	_, err := remote.MemoryStore.Get(ctx, "k")
	assert.NoError(t, err, "write should land on the remote tier")
	_, err = local.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrNotFound, "local tier should stay cold")
	assert.True(t, store.Healthy())
	assert.Equal(t, "redis", store.Backend())
}

func TestFallbackStore_NotFoundIsNotAFailure(t *testing.T) {
	remote := newFlakyStore()
	store := kvstore.NewFallbackStore(remote, kvstore.NewMemoryStore(), kvstore.BreakerConfig{ConsecutiveFailures: 1, OpenTimeout: time.Minute}, discardLogger())
	defer store.Close()

	for i := 0; i < 5; i++ {
		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
	}
	assert.True(t, store.Healthy())
}

func TestFallbackStore_DegradesToLocalOnRemoteFailure(t *testing.T) {
	remote := newFlakyStore()
	local := kvstore.NewMemoryStore()
	store := kvstore.NewFallbackStore(remote, local, kvstore.BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, discardLogger())
	defer store.Close()
	ctx := context.Background()

	remote.down.Store(true)

	// Each failed remote call is served by the local tier, never surfaced
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	assert.False(t, store.Healthy())
	assert.Equal(t, "memory", store.Backend())

	// Breaker is open: the remote is no longer called at all
	before := remote.calls.Load()
	keys, err := store.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
	assert.Equal(t, before, remote.calls.Load())
}

func TestFallbackStore_RecoversAfterOpenTimeout(t *testing.T) {
	remote := newFlakyStore()
	store := kvstore.NewFallbackStore(remote, kvstore.NewMemoryStore(), kvstore.BreakerConfig{ConsecutiveFailures: 1, OpenTimeout: 50 * time.Millisecond}, discardLogger())
	defer store.Close()
	ctx := context.Background()

	remote.down.Store(true)
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	assert.False(t, store.Healthy())

	remote.down.Store(false)
	time.Sleep(80 * time.Millisecond)

	require.NoError(t, store.Set(ctx, "k2", []byte("v"), time.Minute))
	assert.True(t, store.Healthy())

	_, err := remote.MemoryStore.Get(ctx, "k2")
	assert.NoError(t, err)
}
