package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/warden/internal/models"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AddressHistoryServiceInterface defines the address history operations exposed to administrators
type AddressHistoryServiceInterface interface {
	GetHistory(ctx context.Context, principal string) ([]models.AddressEntry, error)
	ClearHistory(ctx context.Context, principal string) error
}

// AddressHandler handles address history requests
type AddressHandler struct {
	service AddressHistoryServiceInterface
}

// NewAddressHandler creates a new AddressHandler
func NewAddressHandler(service AddressHistoryServiceInterface) *AddressHandler {
	return &AddressHandler{service: service}
}

// GetHistory handles GET /admin/users/{id}/addresses
func (h *AddressHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "id")

	history, err := h.service.GetHistory(r.Context(), principal)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"principal": principal,
		"addresses": history,
		"total":     len(history),
	})
}

// ClearHistory handles DELETE /admin/users/{id}/addresses
func (h *AddressHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearHistory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
