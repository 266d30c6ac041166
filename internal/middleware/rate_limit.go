package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/warden/internal/models"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	"github.com/go-chi/httprate"
)

// EventReporter receives RATE_LIMIT_EXCEEDED events
type EventReporter interface {
	TrackEvent(ctx context.Context, eventType models.EventType, metadata models.EventMetadata) (*models.SecurityEvent, error)
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	Scope             string // reported as the endpoint of rejected requests
}

// DefaultDecisionRateLimit returns the limit for the login decision API
func DefaultDecisionRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 600, Scope: "decision"}
}

// RateLimitByIP limits requests per client address and reports every
// rejection to the security monitor so that sustained abuse escalates
func RateLimitByIP(config RateLimitConfig, ips *pkghttp.IPExtractor, events EventReporter, logger *slog.Logger) func(next http.Handler) http.Handler {
	clientIP := func(r *http.Request) string {
		if ips == nil {
			return ""
		}
		return ips.ClientIP(r)
	}

	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return clientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			address := clientIP(r)
			if events != nil {
				_, err := events.TrackEvent(r.Context(), models.EventRateLimitExceeded, models.EventMetadata{
					models.MetaAddress:   address,
					models.MetaEndpoint:  config.Scope,
					models.MetaUserAgent: r.UserAgent(),
				})
				if err != nil {
					logger.Error("failed to report rate limit event", slog.Any("error", err))
				}
			}
			pkghttp.WriteTooManyRequests(w, "rate limit exceeded", 0)
		}),
	)
}
