package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BradenHooton/warden/internal/services"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// LoginGuardInterface defines the pre-login and post-login decision flow
type LoginGuardInterface interface {
	Check(ctx context.Context, attempt services.LoginAttempt) (*services.LoginDecision, error)
	RecordFailure(ctx context.Context, attempt services.LoginAttempt) (*services.LoginDecision, error)
	RecordSuccess(ctx context.Context, attempt services.LoginAttempt, principal string) (*services.LoginSuccess, error)
}

// LoginHandler exposes login decisions to the authenticating service
type LoginHandler struct {
	guard LoginGuardInterface
	ips   *pkghttp.IPExtractor
}

// NewLoginHandler creates a new LoginHandler
func NewLoginHandler(guard LoginGuardInterface, ips *pkghttp.IPExtractor) *LoginHandler {
	return &LoginHandler{guard: guard, ips: ips}
}

// LoginRequest describes an attempt. Address and user agent default to the
// caller's own when omitted, for services that proxy the end user directly.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Address   string `json:"address,omitempty" validate:"omitempty,ip"`
	UserAgent string `json:"user_agent,omitempty" validate:"max=512"`
	Principal string `json:"principal,omitempty" validate:"max=256"`
}

func (h *LoginHandler) decode(w http.ResponseWriter, r *http.Request) (*LoginRequest, services.LoginAttempt, bool) {
	var req LoginRequest
	if err := pkghttp.DecodeJSON(w, r, &req, 0); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return nil, services.LoginAttempt{}, false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return nil, services.LoginAttempt{}, false
	}

	attempt := services.LoginAttempt{
		Email:     req.Email,
		Address:   req.Address,
		UserAgent: req.UserAgent,
	}
	if attempt.Address == "" && h.ips != nil {
		attempt.Address = h.ips.ClientIP(r)
	}
	if attempt.UserAgent == "" {
		attempt.UserAgent = r.UserAgent()
	}
	return &req, attempt, true
}

func writeDecision(w http.ResponseWriter, decision *services.LoginDecision) {
	if !decision.Allowed && decision.RetryAfterSeconds > 0 {
		pkghttp.WriteTooManyRequests(w, decision.Reason, time.Duration(decision.RetryAfterSeconds)*time.Second)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, decision)
}

// Check handles POST /v1/login/check
func (h *LoginHandler) Check(w http.ResponseWriter, r *http.Request) {
	_, attempt, ok := h.decode(w, r)
	if !ok {
		return
	}

	decision, err := h.guard.Check(r.Context(), attempt)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeDecision(w, decision)
}

// RecordFailure handles POST /v1/login/failure
func (h *LoginHandler) RecordFailure(w http.ResponseWriter, r *http.Request) {
	_, attempt, ok := h.decode(w, r)
	if !ok {
		return
	}

	decision, err := h.guard.RecordFailure(r.Context(), attempt)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, decision)
}

// RecordSuccess handles POST /v1/login/success
func (h *LoginHandler) RecordSuccess(w http.ResponseWriter, r *http.Request) {
	req, attempt, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.guard.RecordSuccess(r.Context(), attempt, req.Principal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, result)
}
