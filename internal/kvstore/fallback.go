package kvstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/warden/internal/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig controls when the remote tier is considered unhealthy
type BreakerConfig struct {
	ConsecutiveFailures uint32        // failures in a row before the breaker opens
	OpenTimeout         time.Duration // how long to stay on the fallback before probing the remote again
}

// DefaultBreakerConfig returns the default breaker settings
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 3,
		OpenTimeout:         30 * time.Second,
	}
}

// FallbackStore routes every operation to the remote tier while its circuit
// breaker is closed, and to the local tier when the remote call fails or the
// breaker is open. The tiers are not reconciled: data written locally during
// an outage stays local.
type FallbackStore struct {
	remote Store
	local  Store
	cb     *gobreaker.CircuitBreaker[any]
	logger *slog.Logger
}

// NewFallbackStore wraps remote with local as the degraded tier
func NewFallbackStore(remote, local Store, cfg BreakerConfig, logger *slog.Logger) *FallbackStore {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultBreakerConfig().OpenTimeout
	}

	f := &FallbackStore{
		remote: remote,
		local:  local,
		logger: logger,
	}

	f.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "kvstore-" + remote.Backend(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.StoreBreakerTransitions.WithLabelValues(from.String(), to.String()).Inc()
			switch to {
			case gobreaker.StateOpen:
				metrics.StoreFallbackActive.Set(1)
				logger.Warn("remote store unhealthy, using in-process fallback",
					slog.String("breaker", name),
					slog.Duration("retry_after", cfg.OpenTimeout))
			case gobreaker.StateClosed:
				metrics.StoreFallbackActive.Set(0)
				logger.Info("remote store recovered", slog.String("breaker", name))
			}
		},
	})

	return f
}

// Healthy reports whether the remote tier is currently selected
func (f *FallbackStore) Healthy() bool {
	return f.cb.State() != gobreaker.StateOpen
}

// Backend names the tier that would serve the next request
func (f *FallbackStore) Backend() string {
	if f.Healthy() {
		return f.remote.Backend()
	}
	return f.local.Backend()
}

func (f *FallbackStore) execute(op string, remote func() (any, error), local func() (any, error)) (any, error) {
	res, err := f.cb.Execute(remote)
	if err == nil || errors.Is(err, ErrNotFound) {
		return res, err
	}

	if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.StoreOperationErrors.WithLabelValues(op).Inc()
		f.logger.Error("remote store operation failed, serving from fallback",
			slog.String("operation", op),
			slog.Any("error", err))
	}
	return local()
}

func (f *FallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := f.execute("get",
		func() (any, error) { return f.remote.Get(ctx, key) },
		func() (any, error) { return f.local.Get(ctx, key) },
	)
	if err != nil {
		return nil, err
	}
	b, _ := res.([]byte)
	return b, nil
}

func (f *FallbackStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := f.execute("set",
		func() (any, error) { return nil, f.remote.Set(ctx, key, value, ttl) },
		func() (any, error) { return nil, f.local.Set(ctx, key, value, ttl) },
	)
	return err
}

func (f *FallbackStore) Delete(ctx context.Context, key string) error {
	_, err := f.execute("delete",
		func() (any, error) { return nil, f.remote.Delete(ctx, key) },
		func() (any, error) { return nil, f.local.Delete(ctx, key) },
	)
	return err
}

func (f *FallbackStore) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	res, err := f.execute("delete_pattern",
		func() (any, error) { return f.remote.DeleteByPattern(ctx, pattern) },
		func() (any, error) { return f.local.DeleteByPattern(ctx, pattern) },
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.(int)
	return n, nil
}

func (f *FallbackStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	res, err := f.execute("keys",
		func() (any, error) { return f.remote.Keys(ctx, pattern) },
		func() (any, error) { return f.local.Keys(ctx, pattern) },
	)
	if err != nil {
		return nil, err
	}
	keys, _ := res.([]string)
	return keys, nil
}

// Ping checks the remote tier directly, bypassing the breaker
func (f *FallbackStore) Ping(ctx context.Context) error {
	return f.remote.Ping(ctx)
}

// Close closes both tiers
func (f *FallbackStore) Close() error {
	return errors.Join(f.remote.Close(), f.local.Close())
}
