package kvstore_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock shared by store tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "lockout:email:a", []byte("v1"), time.Minute))

	val, err := store.Get(ctx, "lockout:email:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)

	require.NoError(t, store.Delete(ctx, "lockout:email:a"))
	_, err = store.Get(ctx, "lockout:email:a")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestMemoryStore_ExpiresWithClock(t *testing.T) {
	clock := newFakeClock()
	store := kvstore.NewMemoryStoreWithClock(clock.Now)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 30*time.Second))

	clock.Advance(29 * time.Second)
	_, err := store.Get(ctx, "k")
	assert.NoError(t, err)

	clock.Advance(time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestMemoryStore_JanitorEvictsExpiredEntries(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("v"), 20*time.Millisecond))
	require.NoError(t, store.Set(ctx, "long", []byte("v"), time.Hour))
	require.NoError(t, store.Set(ctx, "forever", []byte("v"), 0))

	assert.Eventually(t, func() bool {
		return store.Len() == 2
	}, time.Second, 10*time.Millisecond)

	_, err := store.Get(ctx, "long")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryStore_OverwriteResetsTTL(t *testing.T) {
	clock := newFakeClock()
	store := kvstore.NewMemoryStoreWithClock(clock.Now)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v1"), 10*time.Second))
	clock.Advance(8 * time.Second)
	require.NoError(t, store.Set(ctx, "k", []byte("v2"), 10*time.Second))
	clock.Advance(8 * time.Second)

	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), val)
}

func TestMemoryStore_PatternOperations(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	for _, key := range []string{"lockout:email:a", "lockout:email:b", "lockout:address:c", "revoked:token:d"} {
		require.NoError(t, store.Set(ctx, key, []byte("1"), time.Minute))
	}

	keys, err := store.Keys(ctx, "lockout:email:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"lockout:email:a", "lockout:email:b"}, keys)

	exact, err := store.Keys(ctx, "revoked:token:d")
	require.NoError(t, err)
	assert.Equal(t, []string{"revoked:token:d"}, exact)

	deleted, err := store.DeleteByPattern(ctx, "lockout:*")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	original := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", original, time.Minute))
	original[0] = 'x'

	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	val[1] = 'y'

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryStore_CloseStopsPing(t *testing.T) {
	store := kvstore.NewMemoryStore()
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Ping(context.Background()), kvstore.ErrClosed)
}
