package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/netip"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/kvstore"
	"github.com/BradenHooton/warden/internal/metrics"
	"github.com/BradenHooton/warden/internal/models"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
	"github.com/go-playground/validator/v10"
)

const (
	failureKeyPrefix    = "lockout:failures:"
	manualLockKeyPrefix = "lockout:manual:"
)

// LockoutConfig holds configuration for the failure window tracker
type LockoutConfig struct {
	Threshold         int
	Window            time.Duration
	LockoutDuration   time.Duration
	ProgressiveDelays []time.Duration // non-decreasing, indexed by failed count
}

// DefaultLockoutConfig returns the default lockout settings
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Threshold:         5,
		Window:            30 * time.Minute,
		LockoutDuration:   15 * time.Minute,
		ProgressiveDelays: []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second},
	}
}

// LockoutService tracks failed authentication attempts per identifier
// inside a rolling window and derives lockout state from them.
//
// Store failures never reach the caller: reads degrade to an empty window
// and writes are logged. Concurrent failures for the same identifier may
// race and undercount by one.
type LockoutService struct {
	store    kvstore.Store
	config   LockoutConfig
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(store kvstore.Store, config LockoutConfig, logger *slog.Logger) *LockoutService {
	defaults := DefaultLockoutConfig()
	if config.Threshold < 1 {
		config.Threshold = defaults.Threshold
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.LockoutDuration <= 0 {
		config.LockoutDuration = defaults.LockoutDuration
	}
	if len(config.ProgressiveDelays) == 0 {
		config.ProgressiveDelays = defaults.ProgressiveDelays
	}

	return &LockoutService{
		store:    store,
		config:   config,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *LockoutService) WithClock(now func() time.Time) *LockoutService {
	s.now = now
	return s
}

// RecordFailure appends a failed attempt for identifier and returns the resulting status
func (s *LockoutService) RecordFailure(ctx context.Context, identifier string, idType models.IdentifierType) (*models.LockoutStatus, error) {
	id, err := s.normalize(identifier, idType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	attempts := s.loadAttempts(ctx, failureKey(idType, id), now)
	wasLocked := s.computeStatus(id, idType, attempts, now).IsLocked

	attempts = append(attempts, now)
	s.saveAttempts(ctx, failureKey(idType, id), attempts)

	status := s.computeStatus(id, idType, attempts, now)
	if status.IsLocked && !wasLocked {
		status.JustLocked = true
		metrics.LockoutsTotal.WithLabelValues(string(idType)).Inc()
		s.logger.Warn("identifier locked out",
			slog.String("identifier_type", string(idType)),
			slog.String("identifier", maskIdentifier(idType, id)),
			slog.Int("failed_attempts", status.FailedAttempts),
			slog.Duration("lockout_duration", status.RemainingLockout))
	}

	return status, nil
}

// CheckLockout returns the current status without recording an attempt
func (s *LockoutService) CheckLockout(ctx context.Context, identifier string, idType models.IdentifierType) (*models.LockoutStatus, error) {
	id, err := s.normalize(identifier, idType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	attempts := s.loadAttempts(ctx, failureKey(idType, id), now)
	return s.computeStatus(id, idType, attempts, now), nil
}

// ClearFailures forgets all failed attempts for identifier, typically after a successful login
func (s *LockoutService) ClearFailures(ctx context.Context, identifier string, idType models.IdentifierType) error {
	id, err := s.normalize(identifier, idType)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, failureKey(idType, id)); err != nil {
		s.logger.Error("failed to clear failures",
			slog.String("identifier_type", string(idType)),
			slog.Any("error", err))
	}
	return nil
}

// GetProgressiveDelay returns the response delay for a caller with failedCount recent failures.
// Counts beyond the table are clamped to its last entry.
func (s *LockoutService) GetProgressiveDelay(failedCount int) time.Duration {
	delays := s.config.ProgressiveDelays
	idx := failedCount
	if idx < 0 {
		idx = 0
	}
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}

// ManualLock places an administrator lock on identifier for duration
func (s *LockoutService) ManualLock(ctx context.Context, identifier string, idType models.IdentifierType, duration time.Duration) error {
	id, err := s.normalize(identifier, idType)
	if err != nil {
		return err
	}
	if duration <= 0 {
		return fmt.Errorf("manual lock duration must be positive: %w", models.ErrInvalidDuration)
	}

	value := []byte(s.now().UTC().Format(time.RFC3339Nano))
	if err := s.store.Set(ctx, manualLockKey(idType, id), value, duration); err != nil {
		s.logger.Error("failed to store manual lock",
			slog.String("identifier_type", string(idType)),
			slog.Any("error", err))
		return nil
	}

	s.logger.Warn("identifier manually locked",
		slog.String("identifier_type", string(idType)),
		slog.String("identifier", maskIdentifier(idType, id)),
		slog.Duration("duration", duration))
	return nil
}

// IsManuallyLocked reports whether an administrator lock is active for identifier
func (s *LockoutService) IsManuallyLocked(ctx context.Context, identifier string, idType models.IdentifierType) (bool, error) {
	id, err := s.normalize(identifier, idType)
	if err != nil {
		return false, err
	}

	_, err = s.store.Get(ctx, manualLockKey(idType, id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, kvstore.ErrNotFound):
		return false, nil
	default:
		s.logger.Error("failed to read manual lock",
			slog.String("identifier_type", string(idType)),
			slog.Any("error", err))
		return false, nil
	}
}

// ManualUnlock removes an administrator lock
func (s *LockoutService) ManualUnlock(ctx context.Context, identifier string, idType models.IdentifierType) error {
	id, err := s.normalize(identifier, idType)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, manualLockKey(idType, id)); err != nil {
		s.logger.Error("failed to remove manual lock",
			slog.String("identifier_type", string(idType)),
			slog.Any("error", err))
	}
	return nil
}

// ClearAll drops every failure record and manual lock of the given type
func (s *LockoutService) ClearAll(ctx context.Context, idType models.IdentifierType) (int, error) {
	if !idType.Valid() {
		return 0, models.ErrInvalidIdentifierType
	}

	total := 0
	for _, prefix := range []string{failureKeyPrefix, manualLockKeyPrefix} {
		n, err := s.store.DeleteByPattern(ctx, prefix+string(idType)+":*")
		if err != nil {
			s.logger.Error("failed to clear lockout records",
				slog.String("identifier_type", string(idType)),
				slog.Any("error", err))
			continue
		}
		total += n
	}

	s.logger.Info("lockout records cleared",
		slog.String("identifier_type", string(idType)),
		slog.Int("deleted", total))
	return total, nil
}

// GetStats counts the identifiers currently tracked
func (s *LockoutService) GetStats(ctx context.Context) *models.LockoutStats {
	stats := &models.LockoutStats{
		Backend:         s.store.Backend(),
		Threshold:       s.config.Threshold,
		Window:          s.config.Window,
		LockoutDuration: s.config.LockoutDuration,
	}

	stats.TrackedEmails = s.countKeys(ctx, failureKeyPrefix+string(models.IdentifierEmail)+":*")
	stats.TrackedAddresses = s.countKeys(ctx, failureKeyPrefix+string(models.IdentifierAddress)+":*")
	stats.ManualLocks = s.countKeys(ctx, manualLockKeyPrefix+"*")
	return stats
}

func (s *LockoutService) countKeys(ctx context.Context, pattern string) int {
	keys, err := s.store.Keys(ctx, pattern)
	if err != nil {
		s.logger.Error("failed to list keys", slog.String("pattern", pattern), slog.Any("error", err))
		return 0
	}
	return len(keys)
}

// computeStatus derives lock state from an ascending list of in-window attempts.
// The lock runs from the attempt that is Threshold positions back from the most
// recent, so it is measured from when the threshold was crossed.
func (s *LockoutService) computeStatus(id string, idType models.IdentifierType, attempts []time.Time, now time.Time) *models.LockoutStatus {
	failed := len(attempts)
	status := &models.LockoutStatus{
		Identifier:        id,
		Type:              idType,
		FailedAttempts:    failed,
		RemainingAttempts: max(0, s.config.Threshold-failed),
	}

	if failed < s.config.Threshold {
		return status
	}

	lockedUntil := attempts[failed-s.config.Threshold].Add(s.config.LockoutDuration)
	remaining := lockedUntil.Sub(now)
	if remaining <= 0 {
		// window still holds the failures but the lock itself has run out
		return status
	}

	status.IsLocked = true
	status.LockedUntil = &lockedUntil
	status.RemainingLockout = remaining
	status.RetryAfterSeconds = int(math.Ceil(remaining.Seconds()))
	return status
}

// loadAttempts returns the in-window attempts in ascending order; store errors yield an empty window
func (s *LockoutService) loadAttempts(ctx context.Context, key string, now time.Time) []time.Time {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Error("failed to load failure window", slog.Any("error", err))
		}
		return nil
	}

	var millis []int64
	if err := json.Unmarshal(raw, &millis); err != nil {
		s.logger.Error("discarding corrupt failure window", slog.Any("error", err))
		return nil
	}

	cutoff := now.Add(-s.config.Window)
	attempts := make([]time.Time, 0, len(millis))
	for _, ms := range millis {
		t := time.UnixMilli(ms)
		if t.Before(cutoff) {
			continue
		}
		attempts = append(attempts, t)
	}
	return attempts
}

func (s *LockoutService) saveAttempts(ctx context.Context, key string, attempts []time.Time) {
	millis := make([]int64, len(attempts))
	for i, t := range attempts {
		millis[i] = t.UnixMilli()
	}

	raw, err := json.Marshal(millis)
	if err != nil {
		s.logger.Error("failed to encode failure window", slog.Any("error", err))
		return
	}

	if err := s.store.Set(ctx, key, raw, s.config.Window); err != nil {
		s.logger.Error("failed to persist failure window", slog.Any("error", err))
	}
}

// normalize validates identifier for its type and returns its canonical form
func (s *LockoutService) normalize(identifier string, idType models.IdentifierType) (string, error) {
	identifier = strings.TrimSpace(identifier)

	switch idType {
	case models.IdentifierEmail:
		if err := s.validate.Var(identifier, "required,email,max=254"); err != nil {
			return "", fmt.Errorf("%q: %w", identifier, models.ErrInvalidIdentifier)
		}
		return strings.ToLower(identifier), nil
	case models.IdentifierAddress:
		if err := s.validate.Var(identifier, "required,ip"); err != nil {
			return "", fmt.Errorf("%q: %w", identifier, models.ErrInvalidAddress)
		}
		addr, err := netip.ParseAddr(identifier)
		if err != nil {
			return "", fmt.Errorf("%q: %w", identifier, models.ErrInvalidAddress)
		}
		return addr.Unmap().String(), nil
	default:
		return "", fmt.Errorf("%q: %w", idType, models.ErrInvalidIdentifierType)
	}
}

func failureKey(idType models.IdentifierType, id string) string {
	return failureKeyPrefix + string(idType) + ":" + id
}

func manualLockKey(idType models.IdentifierType, id string) string {
	return manualLockKeyPrefix + string(idType) + ":" + id
}

func maskIdentifier(idType models.IdentifierType, id string) string {
	if idType == models.IdentifierEmail {
		return pkglogger.SanitizedEmail(id)
	}
	return id
}
