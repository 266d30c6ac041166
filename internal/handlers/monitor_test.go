package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/handlers"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMonitor struct {
	mockEventTracker
	resets int
}

func (m *mockMonitor) GetMetrics() *models.MonitorMetrics {
	return &models.MonitorMetrics{EventsTotal: 12, AlertsSent: 2}
}

func (m *mockMonitor) HealthCheck() *models.MonitorHealth {
	return &models.MonitorHealth{Status: "healthy"}
}

func (m *mockMonitor) Reset() { m.resets++ }

type mockAlertReader struct {
	ListAlertsFunc func(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error)
	GetAlertFunc   func(ctx context.Context, tenantID string, id uuid.UUID) (*models.Alert, error)
}

func (m *mockAlertReader) ListAlerts(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error) {
	if m.ListAlertsFunc == nil {
		return []*models.Alert{}, nil
	}
	return m.ListAlertsFunc(ctx, filter)
}

func (m *mockAlertReader) GetAlert(ctx context.Context, tenantID string, id uuid.UUID) (*models.Alert, error) {
	if m.GetAlertFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetAlertFunc(ctx, tenantID, id)
}

func TestMonitorHandler_TrackEvent(t *testing.T) {
	monitor := &mockMonitor{}
	h := handlers.NewMonitorHandler(monitor, nil, "tenant-a", discardLogger())

	body := map[string]interface{}{
		"type":     "injection_attempt",
		"metadata": map[string]interface{}{"address": "203.0.113.4", "endpoint": "/search"},
	}
	w := serveRoute(http.MethodPost, "/v1/events", h.TrackEvent, newTestRequest(t, http.MethodPost, "/v1/events", body))

	var event models.SecurityEvent
	assertJSONResponse(t, w, http.StatusAccepted, &event)
	assert.Equal(t, models.EventInjectionAttempt, event.Type)
	assert.Equal(t, models.SeverityCritical, event.Severity)
	require.Len(t, monitor.tracked, 1)
	assert.Equal(t, "/search", monitor.metadata[0].Endpoint())
}

func TestMonitorHandler_TrackEventErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown type", models.ErrUnknownEventType, http.StatusBadRequest},
		{"monitor closed", models.ErrMonitorClosed, http.StatusServiceUnavailable},
		{"unexpected failure", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := &mockMonitor{}
			monitor.TrackEventFunc = func(ctx context.Context, eventType models.EventType, metadata models.EventMetadata) (*models.SecurityEvent, error) {
				return nil, tt.err
			}
			h := handlers.NewMonitorHandler(monitor, nil, "", discardLogger())

			w := serveRoute(http.MethodPost, "/v1/events", h.TrackEvent,
				newTestRequest(t, http.MethodPost, "/v1/events", map[string]string{"type": "whatever"}))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestMonitorHandler_MetricsAndReset(t *testing.T) {
	monitor := &mockMonitor{}
	h := handlers.NewMonitorHandler(monitor, nil, "", discardLogger())

	var metrics models.MonitorMetrics
	w := serveRoute(http.MethodGet, "/admin/monitor/metrics", h.GetMetrics,
		newTestRequest(t, http.MethodGet, "/admin/monitor/metrics", nil))
	assertJSONResponse(t, w, http.StatusOK, &metrics)
	assert.Equal(t, int64(12), metrics.EventsTotal)

	w = serveRoute(http.MethodPost, "/admin/monitor/reset", h.Reset,
		withAdmin(newTestRequest(t, http.MethodPost, "/admin/monitor/reset", nil), "ops-1"))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, monitor.resets)
}

func TestMonitorHandler_ListAlerts(t *testing.T) {
	var got repositories.AlertFilter
	reader := &mockAlertReader{
		ListAlertsFunc: func(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error) {
			got = filter
			return []*models.Alert{{ID: uuid.New(), Type: models.EventBruteForceDetected}}, nil
		},
	}
	h := handlers.NewMonitorHandler(&mockMonitor{}, reader, "tenant-a", discardLogger())

	w := serveRoute(http.MethodGet, "/admin/alerts", h.ListAlerts, newTestRequest(t, http.MethodGet,
		"/admin/alerts?type=brute_force_detected&since=2026-03-01T00:00:00Z&limit=10&offset=5", nil))

	var resp map[string]interface{}
	assertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, float64(1), resp["count"])
	assert.Equal(t, "tenant-a", got.TenantID)
	assert.Equal(t, models.EventBruteForceDetected, got.Type)
	assert.True(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Equal(got.Since))
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, 5, got.Offset)

	w = serveRoute(http.MethodGet, "/admin/alerts", h.ListAlerts, newTestRequest(t, http.MethodGet, "/admin/alerts?type=nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	reader.ListAlertsFunc = func(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error) {
		return nil, errors.New("connection refused")
	}
	w = serveRoute(http.MethodGet, "/admin/alerts", h.ListAlerts, newTestRequest(t, http.MethodGet, "/admin/alerts", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMonitorHandler_AlertsWithoutSink(t *testing.T) {
	h := handlers.NewMonitorHandler(&mockMonitor{}, nil, "", discardLogger())

	w := serveRoute(http.MethodGet, "/admin/alerts", h.ListAlerts, newTestRequest(t, http.MethodGet, "/admin/alerts", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMonitorHandler_GetAlert(t *testing.T) {
	id := uuid.New()
	reader := &mockAlertReader{
		GetAlertFunc: func(ctx context.Context, tenantID string, got uuid.UUID) (*models.Alert, error) {
			if got != id {
				return nil, models.ErrNotFound
			}
			return &models.Alert{ID: id, Type: models.EventInjectionAttempt}, nil
		},
	}
	h := handlers.NewMonitorHandler(&mockMonitor{}, reader, "tenant-a", discardLogger())
	pattern := "/admin/alerts/{id}"

	var alert models.Alert
	w := serveRoute(http.MethodGet, pattern, h.GetAlert, newTestRequest(t, http.MethodGet, "/admin/alerts/"+id.String(), nil))
	assertJSONResponse(t, w, http.StatusOK, &alert)
	assert.Equal(t, id, alert.ID)

	w = serveRoute(http.MethodGet, pattern, h.GetAlert, newTestRequest(t, http.MethodGet, "/admin/alerts/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serveRoute(http.MethodGet, pattern, h.GetAlert, newTestRequest(t, http.MethodGet, "/admin/alerts/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
