package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/config"
	"github.com/BradenHooton/warden/internal/handlers"
	"github.com/BradenHooton/warden/internal/kvstore"
	middlewareCustom "github.com/BradenHooton/warden/internal/middleware"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/routes"
	"github.com/BradenHooton/warden/internal/services"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// RecordingChannel captures delivered alerts for test assertions
type RecordingChannel struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

// NewRecordingChannel creates an empty RecordingChannel
func NewRecordingChannel() *RecordingChannel {
	return &RecordingChannel{}
}

func (c *RecordingChannel) Name() string { return "recording" }

// Send records the alert
func (c *RecordingChannel) Send(ctx context.Context, alert *models.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

// Alerts returns a copy of the delivered alerts
func (c *RecordingChannel) Alerts() []*models.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*models.Alert(nil), c.alerts...)
}

// TestServer wraps httptest.Server with the audit database, a miniredis
// backed store and every production dependency
type TestServer struct {
	Server   *httptest.Server
	DB       *TestDB
	Redis    *miniredis.Miniredis
	Store    *kvstore.FallbackStore
	Monitor  *services.SecurityMonitor
	Channel  *RecordingChannel
	Config   *config.Config
	Tokens   *auth.TokenManager
	AdminJWT string
}

// NewTestServer initializes a complete HTTP server over a real audit database
func NewTestServer(db *TestDB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Server: config.ServerConfig{
			Env:            "test",
			AdminJWTSecret: "test-secret-32-characters-long-for-testing",
		},
		Lockout: config.LockoutConfig{
			Threshold: 5,
			Window:    30 * time.Minute,
			Duration:  15 * time.Minute,
		},
		Monitor: config.MonitorConfig{
			TenantID:            TestTenant,
			BruteForceThreshold: 5,
			BruteForceWindow:    15 * time.Minute,
			AlertCooldown:       5 * time.Minute,
			ChannelTimeout:      2 * time.Second,
			BusinessHoursStart:  0,
			BusinessHoursEnd:    24,
		},
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, err
	}
	redisStore, err := kvstore.NewRedisStore(kvstore.RedisConfig{Addr: mr.Addr(), KeyPrefix: "warden:test:"})
	if err != nil {
		mr.Close()
		return nil, err
	}
	store := kvstore.NewFallbackStore(redisStore, kvstore.NewMemoryStore(), kvstore.DefaultBreakerConfig(), logger)

	repo := db.Repository()
	channel := NewRecordingChannel()

	lockout := services.NewLockoutService(store, services.LockoutConfig{
		Threshold:       cfg.Lockout.Threshold,
		Window:          cfg.Lockout.Window,
		LockoutDuration: cfg.Lockout.Duration,
	}, logger)
	history := services.NewAddressHistoryService(store, services.DefaultAddressHistoryConfig(), logger)
	revocations := services.NewTokenRevocationService(redisStore, services.TokenRevocationConfig{}, logger)
	monitor := services.NewSecurityMonitor(services.MonitorConfig{
		TenantID:            cfg.Monitor.TenantID,
		BruteForceThreshold: cfg.Monitor.BruteForceThreshold,
		BruteForceWindow:    cfg.Monitor.BruteForceWindow,
		AlertCooldown:       cfg.Monitor.AlertCooldown,
		ChannelTimeout:      cfg.Monitor.ChannelTimeout,
		BusinessHoursStart:  cfg.Monitor.BusinessHoursStart,
		BusinessHoursEnd:    cfg.Monitor.BusinessHoursEnd,
		Location:            time.UTC,
	}, []services.AlertChannel{channel}, services.NewAuditForwarder(repo, logger), logger)
	guard := services.NewLoginGuard(lockout, history, monitor, logger)

	tokenManager := auth.NewTokenManager(cfg.Server.AdminJWTSecret, time.Hour)
	checker := auth.NewRevocationChecker(revocations, time.Hour, logger)

	ips, err := pkghttp.NewIPExtractor([]string{"127.0.0.1"})
	if err != nil {
		mr.Close()
		return nil, err
	}

	h := routes.Handlers{
		Health: handlers.NewHealthHandler(store, db.DB, handlers.StatsSources{
			Lockout: lockout, Tokens: revocations, History: history, Monitor: monitor,
		}),
		Lockout:   handlers.NewLockoutHandler(lockout),
		Tokens:    handlers.NewTokenHandler(revocations, checker, monitor, logger),
		Addresses: handlers.NewAddressHandler(history),
		Monitor:   handlers.NewMonitorHandler(monitor, repo, cfg.Monitor.TenantID, logger),
		Login:     handlers.NewLoginHandler(guard, ips),
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, h, tokenManager, checker, routes.Limiters{
		Decision: middlewareCustom.RateLimitByIP(middlewareCustom.DefaultDecisionRateLimit(), ips, monitor, logger),
		Admin:    middlewareCustom.RateLimitByIP(middlewareCustom.RateLimitConfig{RequestsPerMinute: 600, Scope: "admin"}, ips, monitor, logger),
	})

	adminJWT, err := tokenManager.GenerateToken("integration-admin", auth.RoleAdmin)
	if err != nil {
		mr.Close()
		return nil, err
	}

	return &TestServer{
		Server:   httptest.NewServer(r),
		DB:       db,
		Redis:    mr,
		Store:    store,
		Monitor:  monitor,
		Channel:  channel,
		Config:   cfg,
		Tokens:   tokenManager,
		AdminJWT: adminJWT,
	}, nil
}

// Close shuts down the test server and drains pending audit writes
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ts.Monitor.Shutdown(ctx)
	_ = ts.Store.Close()
	ts.Redis.Close()
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an admin-authenticated HTTP request
func (ts *TestServer) RequestWithAuth(method, path string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + ts.AdminJWT,
	})
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts the message from an error response
func GetErrorMessage(resp *http.Response) (string, error) {
	var errResp pkghttp.ErrorResponse
	if err := ParseJSONResponse(resp, &errResp); err != nil {
		return "", err
	}
	return errResp.Message, nil
}
