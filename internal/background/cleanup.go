package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MonitorPruner drops expired in-memory detector state
type MonitorPruner interface {
	PruneExpired() int
}

// AuditPurger removes audit rows past retention
type AuditPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (events, alerts int64, err error)
}

// CleanupManager periodically prunes expired pattern counters and cooldowns
// from the security monitor and purges audit rows older than the retention period
type CleanupManager struct {
	monitor   MonitorPruner
	audit     AuditPurger // nil when no audit sink is configured
	retention time.Duration
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	monitor MonitorPruner,
	audit AuditPurger,
	retention time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		monitor:   monitor,
		audit:     audit,
		retention: retention,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the periodic cleanup until Stop is called or ctx is done
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single cleanup pass
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	if pruned := cm.monitor.PruneExpired(); pruned > 0 {
		cm.logger.Info("pruned expired detector state", slog.Int("entries", pruned))
	}

	if cm.audit == nil || cm.retention <= 0 {
		return
	}

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := cm.now().Add(-cm.retention)
	events, alerts, err := cm.audit.DeleteOlderThan(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to purge audit records", slog.Any("error", err))
		return
	}

	if events > 0 || alerts > 0 {
		cm.logger.Info("audit retention purge completed",
			slog.Int64("events_deleted", events),
			slog.Int64("alerts_deleted", alerts),
			slog.Time("cutoff", cutoff))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
