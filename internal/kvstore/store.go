// Package kvstore provides the volatile keyed store shared by the security
// trackers: a Redis-backed remote tier, an in-process fallback tier, and a
// two-tier store that switches between them on remote health.
package kvstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired
var ErrNotFound = errors.New("kvstore: key not found")

// ErrClosed is returned after Close
var ErrClosed = errors.New("kvstore: store closed")

// Store is an addressable key-value store with per-key TTL.
// Patterns are either an exact key or a trailing-wildcard prefix ("prefix:*").
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Backend() string
	Close() error
}

// matchPattern reports whether key matches an exact or trailing-wildcard pattern
func matchPattern(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
