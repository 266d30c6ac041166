package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BradenHooton/warden/internal/models"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	"github.com/go-chi/chi/v5"
)

// LockoutServiceInterface defines the failure tracker operations exposed to administrators
type LockoutServiceInterface interface {
	CheckLockout(ctx context.Context, identifier string, idType models.IdentifierType) (*models.LockoutStatus, error)
	ClearFailures(ctx context.Context, identifier string, idType models.IdentifierType) error
	ManualLock(ctx context.Context, identifier string, idType models.IdentifierType, duration time.Duration) error
	IsManuallyLocked(ctx context.Context, identifier string, idType models.IdentifierType) (bool, error)
	ManualUnlock(ctx context.Context, identifier string, idType models.IdentifierType) error
	ClearAll(ctx context.Context, idType models.IdentifierType) (int, error)
}

// LockoutHandler handles lockout administration requests
type LockoutHandler struct {
	service LockoutServiceInterface
}

// NewLockoutHandler creates a new LockoutHandler
func NewLockoutHandler(service LockoutServiceInterface) *LockoutHandler {
	return &LockoutHandler{service: service}
}

// LockoutStatusResponse is the status of one identifier including any manual lock
type LockoutStatusResponse struct {
	*models.LockoutStatus
	ManuallyLocked bool `json:"manually_locked"`
}

// ManualLockRequest is the body of a manual lock request
type ManualLockRequest struct {
	Duration string `json:"duration" validate:"required"`
}

// identifierParams reads {type} and {identifier} from the route
func identifierParams(r *http.Request) (string, models.IdentifierType) {
	return chi.URLParam(r, "identifier"), models.IdentifierType(chi.URLParam(r, "type"))
}

// GetStatus handles GET /admin/lockouts/{type}/{identifier}
func (h *LockoutHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	identifier, idType := identifierParams(r)

	status, err := h.service.CheckLockout(r.Context(), identifier, idType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	manual, err := h.service.IsManuallyLocked(r.Context(), identifier, idType)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LockoutStatusResponse{LockoutStatus: status, ManuallyLocked: manual})
}

// ClearFailures handles DELETE /admin/lockouts/{type}/{identifier}
func (h *LockoutHandler) ClearFailures(w http.ResponseWriter, r *http.Request) {
	identifier, idType := identifierParams(r)

	if err := h.service.ClearFailures(r.Context(), identifier, idType); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ManualLock handles POST /admin/lockouts/{type}/{identifier}/manual
func (h *LockoutHandler) ManualLock(w http.ResponseWriter, r *http.Request) {
	identifier, idType := identifierParams(r)

	var req ManualLockRequest
	if err := pkghttp.DecodeJSON(w, r, &req, 0); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	duration, err := parseDuration(req.Duration)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.service.ManualLock(r.Context(), identifier, idType, duration); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ManualUnlock handles DELETE /admin/lockouts/{type}/{identifier}/manual
func (h *LockoutHandler) ManualUnlock(w http.ResponseWriter, r *http.Request) {
	identifier, idType := identifierParams(r)

	if err := h.service.ManualUnlock(r.Context(), identifier, idType); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearAll handles DELETE /admin/lockouts/{type}
func (h *LockoutHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	idType := models.IdentifierType(chi.URLParam(r, "type"))

	deleted, err := h.service.ClearAll(r.Context(), idType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
