package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/models"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	"github.com/go-chi/chi/v5"
)

// TokenServiceInterface defines the revocation store operations used by the handler
type TokenServiceInterface interface {
	RemoveFromBlacklist(ctx context.Context, token string) error
	BlacklistUserTokens(ctx context.Context, principal string, ttl time.Duration) error
}

// JWTRevoker revokes and checks JWTs by their own claims
type JWTRevoker interface {
	RevokeJWT(ctx context.Context, token string) (*auth.TokenInfo, error)
	IsRevoked(ctx context.Context, token string) bool
}

// EventTracker reports security events to the monitor
type EventTracker interface {
	TrackEvent(ctx context.Context, eventType models.EventType, metadata models.EventMetadata) (*models.SecurityEvent, error)
}

// TokenHandler handles token revocation requests
type TokenHandler struct {
	tokens  TokenServiceInterface
	revoker JWTRevoker
	events  EventTracker
	logger  *slog.Logger
}

// NewTokenHandler creates a new TokenHandler
func NewTokenHandler(tokens TokenServiceInterface, revoker JWTRevoker, events EventTracker, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, revoker: revoker, events: events, logger: logger}
}

// TokenRequest carries a bearer token in the body so it never lands in access logs
type TokenRequest struct {
	Token string `json:"token" validate:"required,max=8192"`
}

// RevokeAllRequest optionally overrides how long the principal epoch is kept
type RevokeAllRequest struct {
	TTL string `json:"ttl,omitempty"`
}

// TokenCheckResponse is the verdict of a revocation check
type TokenCheckResponse struct {
	Revoked bool `json:"revoked"`
}

func (h *TokenHandler) decodeToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req TokenRequest
	if err := pkghttp.DecodeJSON(w, r, &req, 0); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return "", false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return "", false
	}
	return req.Token, true
}

// Revoke handles POST /admin/tokens/revoke
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	token, ok := h.decodeToken(w, r)
	if !ok {
		return
	}

	info, err := h.revoker.RevokeJWT(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.track(r, models.EventMetadata{
		models.MetaPrincipal: info.Subject,
		"jti":                info.ID,
		"revoked_by":         adminSubject(r),
	})
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"revoked":    true,
		"jti":        info.ID,
		"subject":    info.Subject,
		"expires_at": info.ExpiresAt,
	})
}

// Unrevoke handles DELETE /admin/tokens/revoke
func (h *TokenHandler) Unrevoke(w http.ResponseWriter, r *http.Request) {
	token, ok := h.decodeToken(w, r)
	if !ok {
		return
	}

	if err := h.tokens.RemoveFromBlacklist(r.Context(), token); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAll handles POST /admin/users/{id}/revoke-all
func (h *TokenHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "id")

	var ttl time.Duration
	if r.ContentLength > 0 {
		var req RevokeAllRequest
		if err := pkghttp.DecodeJSON(w, r, &req, 0); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		if req.TTL != "" {
			d, err := parseDuration(req.TTL)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			ttl = d
		}
	}

	if err := h.tokens.BlacklistUserTokens(r.Context(), principal, ttl); err != nil {
		writeServiceError(w, err)
		return
	}

	h.track(r, models.EventMetadata{
		models.MetaPrincipal: principal,
		"scope":              "all",
		"revoked_by":         adminSubject(r),
	})
	w.WriteHeader(http.StatusNoContent)
}

// Check handles POST /v1/tokens/check
func (h *TokenHandler) Check(w http.ResponseWriter, r *http.Request) {
	token, ok := h.decodeToken(w, r)
	if !ok {
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, TokenCheckResponse{Revoked: h.revoker.IsRevoked(r.Context(), token)})
}

func (h *TokenHandler) track(r *http.Request, metadata models.EventMetadata) {
	if _, err := h.events.TrackEvent(r.Context(), models.EventTokenRevoked, metadata); err != nil {
		h.logger.Error("failed to track token revocation", slog.Any("error", err))
	}
}

// adminSubject returns the authenticated administrator, if any
func adminSubject(r *http.Request) string {
	if claims := auth.GetClaimsFromContext(r); claims != nil {
		return claims.Subject
	}
	return ""
}
