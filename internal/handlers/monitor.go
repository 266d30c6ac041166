package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/repositories"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// MonitorServiceInterface defines the security monitor operations exposed over HTTP
type MonitorServiceInterface interface {
	EventTracker
	GetMetrics() *models.MonitorMetrics
	Reset()
}

// AlertReader reads persisted alerts from the audit sink
type AlertReader interface {
	ListAlerts(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error)
	GetAlert(ctx context.Context, tenantID string, id uuid.UUID) (*models.Alert, error)
}

// MonitorHandler handles event ingestion and monitor administration
type MonitorHandler struct {
	monitor  MonitorServiceInterface
	alerts   AlertReader // nil when no audit sink is configured
	tenantID string
	logger   *slog.Logger
}

// NewMonitorHandler creates a new MonitorHandler
func NewMonitorHandler(monitor MonitorServiceInterface, alerts AlertReader, tenantID string, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, alerts: alerts, tenantID: tenantID, logger: logger}
}

// TrackEventRequest is an externally reported security event
type TrackEventRequest struct {
	Type     models.EventType     `json:"type" validate:"required,max=64"`
	Metadata models.EventMetadata `json:"metadata"`
}

// TrackEvent handles POST /v1/events
func (h *MonitorHandler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	var req TrackEventRequest
	if err := pkghttp.DecodeJSON(w, r, &req, 64<<10); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	event, err := h.monitor.TrackEvent(r.Context(), req.Type, req.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusAccepted, event)
}

// GetMetrics handles GET /admin/monitor/metrics
func (h *MonitorHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.monitor.GetMetrics())
}

// Reset handles POST /admin/monitor/reset
func (h *MonitorHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.monitor.Reset()
	h.logger.Warn("security monitor reset", slog.String("admin", adminSubject(r)))
	w.WriteHeader(http.StatusNoContent)
}

// ListAlerts handles GET /admin/alerts
// Accepts optional query params ?type=, ?since= (RFC3339), ?limit= (1-500) and ?offset=
func (h *MonitorHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		pkghttp.WriteServiceUnavailable(w, "audit sink not configured")
		return
	}

	q := r.URL.Query()
	filter := repositories.AlertFilter{TenantID: h.tenantID}

	if t := q.Get("type"); t != "" {
		eventType := models.EventType(t)
		if !eventType.Valid() {
			pkghttp.WriteBadRequest(w, "unknown alert type")
			return
		}
		filter.Type = eventType
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			pkghttp.WriteBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = since
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	alerts, err := h.alerts.ListAlerts(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list alerts", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "failed to list alerts")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetAlert handles GET /admin/alerts/{id}
func (h *MonitorHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		pkghttp.WriteServiceUnavailable(w, "audit sink not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "invalid alert id")
		return
	}

	alert, err := h.alerts.GetAlert(r.Context(), h.tenantID, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "alert not found")
			return
		}
		h.logger.Error("failed to load alert", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "failed to load alert")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, alert)
}
