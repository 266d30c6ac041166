package services_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/kvstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newClockedStore(t *testing.T, clock *fakeClock) *kvstore.MemoryStore {
	t.Helper()
	store := kvstore.NewMemoryStoreWithClock(clock.Now)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
