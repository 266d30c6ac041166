package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BradenHooton/warden/internal/models"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// StoreHealth reports on the volatile keyed store
type StoreHealth interface {
	Ping(ctx context.Context) error
	Backend() string
	Healthy() bool
}

// DatabasePinger reports on the optional audit database
type DatabasePinger interface {
	HealthCheck(ctx context.Context) error
}

// StatsSources gathers the per-component stats operations
type StatsSources struct {
	Lockout interface {
		GetStats(ctx context.Context) *models.LockoutStats
	}
	Tokens interface {
		GetStats(ctx context.Context) *models.TokenStats
	}
	History interface {
		GetStats(ctx context.Context) *models.AddressHistoryStats
	}
	Monitor interface {
		GetMetrics() *models.MonitorMetrics
		HealthCheck() *models.MonitorHealth
	}
}

// HealthHandler serves liveness and aggregate statistics
type HealthHandler struct {
	store StoreHealth
	db    DatabasePinger // nil when no audit sink is configured
	stats StatsSources
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(store StoreHealth, db DatabasePinger, stats StatsSources) *HealthHandler {
	return &HealthHandler{store: store, db: db, stats: stats}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string                `json:"status"`
	Store    map[string]any        `json:"store"`
	Database string                `json:"database,omitempty"`
	Monitor  *models.MonitorHealth `json:"monitor"`
}

// Health handles GET /health. An unreachable remote store or audit database
// only degrades the service since the local tier keeps serving; a shut-down
// monitor makes it unhealthy.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:  "healthy",
		Monitor: h.stats.Monitor.HealthCheck(),
		Store: map[string]any{
			"backend":   h.store.Backend(),
			"remote_ok": h.store.Healthy(),
		},
	}

	if err := h.store.Ping(ctx); err != nil {
		resp.Store["error"] = err.Error()
		resp.Status = "degraded"
	}
	if !h.store.Healthy() {
		resp.Status = "degraded"
	}

	if h.db != nil {
		resp.Database = "ok"
		if err := h.db.HealthCheck(ctx); err != nil {
			resp.Database = "unreachable"
			resp.Status = "degraded"
		}
	}

	switch resp.Monitor.Status {
	case "unhealthy":
		resp.Status = "unhealthy"
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	case "degraded":
		resp.Status = "degraded"
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Stats handles GET /admin/stats
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"lockout":         h.stats.Lockout.GetStats(ctx),
		"tokens":          h.stats.Tokens.GetStats(ctx),
		"address_history": h.stats.History.GetStats(ctx),
		"monitor":         h.stats.Monitor.GetMetrics(),
	})
}
