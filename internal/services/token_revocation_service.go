package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/kvstore"
	"github.com/BradenHooton/warden/internal/metrics"
	"github.com/BradenHooton/warden/internal/models"
	"golang.org/x/crypto/blake2b"
)

const (
	revokedTokenPrefix = "revoked:token:"
	revokedUserPrefix  = "revoked:user:"
)

// TokenRevocationConfig holds configuration for the revocation store
type TokenRevocationConfig struct {
	UserRevocationTTL time.Duration // default lifetime of a principal revocation epoch
}

// TokenRevocationService keeps a blacklist of individual tokens and a
// per-principal revoke-before epoch.
//
// It talks to the shared store directly with no local fallback. When the
// store is unreachable every check fails open and reports "not revoked".
type TokenRevocationService struct {
	store  kvstore.Store
	config TokenRevocationConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenRevocationService creates a new TokenRevocationService
func NewTokenRevocationService(store kvstore.Store, config TokenRevocationConfig, logger *slog.Logger) *TokenRevocationService {
	if config.UserRevocationTTL <= 0 {
		config.UserRevocationTTL = 7 * 24 * time.Hour
	}
	return &TokenRevocationService{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *TokenRevocationService) WithClock(now func() time.Time) *TokenRevocationService {
	s.now = now
	return s
}

// BlacklistToken revokes a single token for ttl.
// ttl must cover the token's remaining lifetime or the token becomes valid again when the marker expires.
func (s *TokenRevocationService) BlacklistToken(ctx context.Context, token string, ttl time.Duration) error {
	if strings.TrimSpace(token) == "" {
		return models.ErrInvalidToken
	}
	if ttl <= 0 {
		return fmt.Errorf("revocation ttl must be positive: %w", models.ErrInvalidDuration)
	}

	if err := s.store.Set(ctx, tokenKey(token), []byte("1"), ttl); err != nil {
		s.logger.Error("failed to blacklist token", slog.Any("error", err))
		return nil
	}

	s.logger.Info("token blacklisted", slog.Duration("ttl", ttl))
	return nil
}

// IsBlacklisted reports whether token has been revoked. Fails open.
func (s *TokenRevocationService) IsBlacklisted(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	_, err := s.store.Get(ctx, tokenKey(token))
	switch {
	case err == nil:
		metrics.RevocationChecksTotal.WithLabelValues("token", "revoked").Inc()
		return true
	case errors.Is(err, kvstore.ErrNotFound):
		metrics.RevocationChecksTotal.WithLabelValues("token", "valid").Inc()
		return false
	default:
		metrics.RevocationChecksTotal.WithLabelValues("token", "fail_open").Inc()
		s.logger.Warn("revocation store unavailable, treating token as valid", slog.Any("error", err))
		return false
	}
}

// BlacklistUserTokens revokes every token issued to principal before now.
// A non-positive ttl uses the configured default.
func (s *TokenRevocationService) BlacklistUserTokens(ctx context.Context, principal string, ttl time.Duration) error {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return models.ErrInvalidPrincipal
	}
	if ttl <= 0 {
		ttl = s.config.UserRevocationTTL
	}

	epoch := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.store.Set(ctx, revokedUserPrefix+principal, []byte(epoch), ttl); err != nil {
		s.logger.Error("failed to revoke user tokens",
			slog.String("principal", principal),
			slog.Any("error", err))
		return nil
	}

	s.logger.Warn("all tokens revoked for principal",
		slog.String("principal", principal),
		slog.Duration("ttl", ttl))
	return nil
}

// AreUserTokensBlacklisted reports whether a token issued at issuedAt predates
// the principal's revocation epoch. Fails open.
func (s *TokenRevocationService) AreUserTokensBlacklisted(ctx context.Context, principal string, issuedAt time.Time) bool {
	if principal == "" {
		return false
	}

	raw, err := s.store.Get(ctx, revokedUserPrefix+principal)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			metrics.RevocationChecksTotal.WithLabelValues("principal", "valid").Inc()
		} else {
			metrics.RevocationChecksTotal.WithLabelValues("principal", "fail_open").Inc()
			s.logger.Warn("revocation store unavailable, treating principal tokens as valid", slog.Any("error", err))
		}
		return false
	}

	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		s.logger.Error("corrupt revocation epoch", slog.String("principal", principal), slog.Any("error", err))
		return false
	}

	revoked := issuedAt.Before(time.UnixMilli(ms))
	outcome := "valid"
	if revoked {
		outcome = "revoked"
	}
	metrics.RevocationChecksTotal.WithLabelValues("principal", outcome).Inc()
	return revoked
}

// RemoveFromBlacklist un-revokes a single token
func (s *TokenRevocationService) RemoveFromBlacklist(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return models.ErrInvalidToken
	}

	if err := s.store.Delete(ctx, tokenKey(token)); err != nil {
		s.logger.Error("failed to remove token from blacklist", slog.Any("error", err))
		return nil
	}

	s.logger.Warn("token removed from blacklist")
	return nil
}

// GetStats reports store reachability and the number of active revocations
func (s *TokenRevocationService) GetStats(ctx context.Context) *models.TokenStats {
	stats := &models.TokenStats{}
	if err := s.store.Ping(ctx); err != nil {
		return stats
	}
	stats.Available = true

	if keys, err := s.store.Keys(ctx, revokedTokenPrefix+"*"); err == nil {
		stats.RevokedTokens = len(keys)
	}
	if keys, err := s.store.Keys(ctx, revokedUserPrefix+"*"); err == nil {
		stats.RevokedPrincipals = len(keys)
	}
	return stats
}

// tokenKey stores a digest rather than the bearer token itself
func tokenKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return revokedTokenPrefix + hex.EncodeToString(sum[:])
}
