package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePruner struct {
	calls atomic.Int32
}

func (f *fakePruner) PruneExpired() int {
	f.calls.Add(1)
	return 2
}

type fakePurger struct {
	cutoff time.Time
	err    error
}

func (f *fakePurger) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	f.cutoff = cutoff
	return 3, 1, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestCleanupManager_RunOncePurgesWithRetention(t *testing.T) {
	pruner := &fakePruner{}
	purger := &fakePurger{}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	cm := NewCleanupManager(pruner, purger, 90*24*time.Hour, testLogger(), time.Hour)
	cm.now = func() time.Time { return now }
	cm.RunOnce(context.Background())

	assert.Equal(t, int32(1), pruner.calls.Load())
	assert.Equal(t, now.Add(-90*24*time.Hour), purger.cutoff)
}

func TestCleanupManager_NoAuditSink(t *testing.T) {
	pruner := &fakePruner{}
	cm := NewCleanupManager(pruner, nil, 24*time.Hour, testLogger(), time.Hour)

	assert.NotPanics(t, func() { cm.RunOnce(context.Background()) })
	assert.Equal(t, int32(1), pruner.calls.Load())
}

func TestCleanupManager_PurgeErrorIsLogged(t *testing.T) {
	purger := &fakePurger{err: errors.New("connection reset")}
	cm := NewCleanupManager(&fakePruner{}, purger, time.Hour, testLogger(), time.Hour)

	assert.NotPanics(t, func() { cm.RunOnce(context.Background()) })
}

func TestCleanupManager_StartAndStop(t *testing.T) {
	pruner := &fakePruner{}
	cm := NewCleanupManager(pruner, nil, 0, testLogger(), 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return pruner.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cm.Stop()
	cm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}
