package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/background"
	"github.com/BradenHooton/warden/internal/config"
	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/handlers"
	"github.com/BradenHooton/warden/internal/kvstore"
	middlewareCustom "github.com/BradenHooton/warden/internal/middleware"
	"github.com/BradenHooton/warden/internal/notify"
	"github.com/BradenHooton/warden/internal/repositories"
	"github.com/BradenHooton/warden/internal/routes"
	"github.com/BradenHooton/warden/internal/services"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	issueRole := flag.String("issue-token", "", "print a bearer token for the given role (admin or service) and exit")
	issueSubject := flag.String("subject", "operator", "subject of the issued token")
	issueTTL := flag.Duration("ttl", 24*time.Hour, "lifetime of the issued token")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	tokenManager := auth.NewTokenManager(cfg.Server.AdminJWTSecret, *issueTTL)
	if *issueRole != "" {
		if err := issueToken(tokenManager, *issueRole, *issueSubject); err != nil {
			logger.Error("failed to issue token", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("redis_addr", cfg.Redis.Addr),
		slog.Bool("audit_db", cfg.Database.Enabled),
	)

	// Shared store: redis behind a breaker, in-memory fallback
	redisStore, err := kvstore.NewRedisStore(kvstore.RedisConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		KeyPrefix:    cfg.Redis.KeyPrefix,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.IOTimeout,
		WriteTimeout: cfg.Redis.IOTimeout,
		PoolSize:     cfg.Redis.PoolSize,
		TLSEnabled:   cfg.Redis.TLSEnabled,
	})
	if err != nil {
		logger.Error("failed to create redis store", slog.Any("error", err))
		os.Exit(1)
	}
	store := kvstore.NewFallbackStore(redisStore, kvstore.NewMemoryStore(), kvstore.BreakerConfig{
		ConsecutiveFailures: uint32(cfg.Redis.BreakerFailures),
		OpenTimeout:         cfg.Redis.BreakerTimeout,
	}, logger)

	// Optional audit database
	var (
		db        *database.DB
		auditRepo *repositories.SecurityAuditRepository
	)
	if cfg.Database.Enabled {
		startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err = database.NewConnection(startCtx, &cfg.Database, logger)
		if err == nil {
			err = database.Migrate(startCtx, db.Pool, logger)
		}
		cancel()
		if err != nil {
			logger.Error("failed to initialize audit database", slog.Any("error", err))
			os.Exit(1)
		}
		auditRepo = repositories.NewSecurityAuditRepository(db)
	}

	// Alert channels
	channels, err := buildChannels(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize alert channels", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	lockoutService := services.NewLockoutService(store, services.LockoutConfig{
		Threshold:         cfg.Lockout.Threshold,
		Window:            cfg.Lockout.Window,
		LockoutDuration:   cfg.Lockout.Duration,
		ProgressiveDelays: cfg.Lockout.ProgressiveDelays,
	}, logger)

	historyService := services.NewAddressHistoryService(store, services.AddressHistoryConfig{
		MaxEntries: cfg.History.MaxEntries,
		Retention:  cfg.History.Retention,
		StaleAfter: cfg.History.StaleAfter,
		ChurnLimit: cfg.History.ChurnLimit,
	}, logger)

	// Revocations must be shared across instances, so they skip the local fallback
	revocationService := services.NewTokenRevocationService(redisStore, services.TokenRevocationConfig{
		UserRevocationTTL: cfg.Tokens.UserRevocationTTL,
	}, logger)

	var sink services.AuditSink
	if auditRepo != nil {
		sink = auditRepo
	}
	forwarder := services.NewAuditForwarder(sink, logger)

	monitor := services.NewSecurityMonitor(services.MonitorConfig{
		TenantID:                cfg.Monitor.TenantID,
		BruteForceThreshold:     cfg.Monitor.BruteForceThreshold,
		BruteForceWindow:        cfg.Monitor.BruteForceWindow,
		RateEscalationThreshold: cfg.Monitor.RateEscalationThreshold,
		RateEscalationWindow:    cfg.Monitor.RateEscalationWindow,
		AlertCooldown:           cfg.Monitor.AlertCooldown,
		ChannelTimeout:          cfg.Monitor.ChannelTimeout,
		BusinessHoursStart:      cfg.Monitor.BusinessHoursStart,
		BusinessHoursEnd:        cfg.Monitor.BusinessHoursEnd,
		Location:                time.Local,
	}, channels, forwarder, logger)

	loginGuard := services.NewLoginGuard(lockoutService, historyService, monitor, logger)

	// Auth
	revocationChecker := auth.NewRevocationChecker(revocationService, cfg.Tokens.UserRevocationTTL, logger)

	ips, err := pkghttp.NewIPExtractor(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxy list", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	var (
		dbHealth    handlers.DatabasePinger
		alertReader handlers.AlertReader
		purger      background.AuditPurger
	)
	if auditRepo != nil {
		dbHealth, alertReader, purger = db, auditRepo, auditRepo
	}

	h := routes.Handlers{
		Health: handlers.NewHealthHandler(store, dbHealth, handlers.StatsSources{
			Lockout: lockoutService,
			Tokens:  revocationService,
			History: historyService,
			Monitor: monitor,
		}),
		Lockout:   handlers.NewLockoutHandler(lockoutService),
		Tokens:    handlers.NewTokenHandler(revocationService, revocationChecker, monitor, logger),
		Addresses: handlers.NewAddressHandler(historyService),
		Monitor:   handlers.NewMonitorHandler(monitor, alertReader, cfg.Monitor.TenantID, logger),
		Login:     handlers.NewLoginHandler(loginGuard, ips),
	}

	limiters := routes.Limiters{
		Decision: middlewareCustom.RateLimitByIP(middlewareCustom.DefaultDecisionRateLimit(), ips, monitor, logger),
		Admin: middlewareCustom.RateLimitByIP(middlewareCustom.RateLimitConfig{
			RequestsPerMinute: cfg.Server.AdminRateLimit,
			Scope:             "admin",
		}, ips, monitor, logger),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ips))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	routes.RegisterRoutes(router, h, tokenManager, revocationChecker, limiters)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(monitor, purger, cfg.Cleanup.AuditRetention, logger, cfg.Cleanup.Interval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr), slog.Int("alert_channels", len(channels)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	exitCode := 0
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		exitCode = 1
	}

	cleanupCancel()
	cleanupManager.Stop()

	// Drain pending alert deliveries and audit writes before the pool closes
	if err := monitor.Shutdown(shutdownCtx); err != nil {
		logger.Warn("monitor did not drain before deadline", slog.Any("error", err))
	}
	if err := store.Close(); err != nil {
		logger.Warn("store close error", slog.Any("error", err))
	}
	if db != nil {
		db.Close()
	}

	logger.Info("server stopped gracefully")
	os.Exit(exitCode)
}

// buildChannels returns the alert channels enabled by configuration
func buildChannels(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]services.AlertChannel, error) {
	var channels []services.AlertChannel

	if cfg.Channels.EmailEnabled {
		ses, err := notify.NewSESChannel(ctx, cfg.Channels.AWSRegion, cfg.Channels.EmailFrom, cfg.Channels.EmailTo, logger)
		if err != nil {
			return nil, fmt.Errorf("email channel: %w", err)
		}
		channels = append(channels, ses)
	}
	if cfg.Channels.SlackWebhookURL != "" {
		channels = append(channels, notify.NewSlackChannel(cfg.Channels.SlackWebhookURL, cfg.Channels.SlackChannel))
	}
	if cfg.Channels.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel(cfg.Channels.WebhookURL, cfg.Channels.WebhookSecret))
	}
	if cfg.Channels.CloudWatchEnabled {
		cw, err := notify.NewCloudWatchChannel(ctx, cfg.Channels.AWSRegion, cfg.Channels.CloudWatchNamespace)
		if err != nil {
			return nil, fmt.Errorf("cloudwatch channel: %w", err)
		}
		channels = append(channels, cw)
	}

	for _, ch := range channels {
		logger.Info("alert channel enabled", slog.String("channel", ch.Name()))
	}
	return channels, nil
}

// issueToken prints a signed bearer token for bootstrapping operators and services
func issueToken(tm *auth.TokenManager, role, subject string) error {
	if role != auth.RoleAdmin && role != auth.RoleService {
		return fmt.Errorf("unknown role %q", role)
	}
	token, err := tm.GenerateToken(subject, role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
