package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Lockout  LockoutConfig
	Tokens   TokenConfig
	History  AddressHistoryConfig
	Monitor  MonitorConfig
	Channels ChannelsConfig
	Cleanup  CleanupConfig
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AdminJWTSecret  string
	AdminRateLimit  int
	TrustedProxies  []string
}

type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	KeyPrefix       string
	DialTimeout     time.Duration
	IOTimeout       time.Duration
	PoolSize        int
	TLSEnabled      bool
	BreakerFailures int
	BreakerTimeout  time.Duration
}

type DatabaseConfig struct {
	Enabled           bool
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type LockoutConfig struct {
	Threshold         int
	Window            time.Duration
	Duration          time.Duration
	ProgressiveDelays []time.Duration
}

type TokenConfig struct {
	UserRevocationTTL time.Duration
}

type AddressHistoryConfig struct {
	MaxEntries int
	Retention  time.Duration
	StaleAfter time.Duration
	ChurnLimit int
}

type MonitorConfig struct {
	TenantID                string
	BruteForceThreshold     int
	BruteForceWindow        time.Duration
	RateEscalationThreshold int
	RateEscalationWindow    time.Duration
	AlertCooldown           time.Duration
	ChannelTimeout          time.Duration
	BusinessHoursStart      int
	BusinessHoursEnd        int
}

type ChannelsConfig struct {
	EmailEnabled        bool
	AWSRegion           string
	EmailFrom           string
	EmailTo             []string
	SlackWebhookURL     string
	SlackChannel        string
	WebhookURL          string
	WebhookSecret       string
	CloudWatchEnabled   bool
	CloudWatchNamespace string
}

type CleanupConfig struct {
	Interval       time.Duration
	AuditRetention time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	adminSecret := getEnv("ADMIN_JWT_SECRET", "")
	if adminSecret == "" {
		return nil, fmt.Errorf("ADMIN_JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	delays, err := parseDurationList(getEnv("LOCKOUT_PROGRESSIVE_DELAYS", "0s,2s,5s,10s,30s"))
	if err != nil {
		return nil, fmt.Errorf("LOCKOUT_PROGRESSIVE_DELAYS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			AdminJWTSecret:  adminSecret,
			AdminRateLimit:  getEnvAsInt("ADMIN_RATE_LIMIT", 60),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES"),
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", "localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvAsInt("REDIS_DB", 0),
			KeyPrefix:       getEnv("REDIS_KEY_PREFIX", "warden:"),
			DialTimeout:     getEnvAsDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			IOTimeout:       getEnvAsDuration("REDIS_IO_TIMEOUT", 500*time.Millisecond),
			PoolSize:        getEnvAsInt("REDIS_POOL_SIZE", 20),
			TLSEnabled:      getEnvAsBool("REDIS_TLS", false),
			BreakerFailures: getEnvAsInt("STORE_BREAKER_FAILURES", 3),
			BreakerTimeout:  getEnvAsDuration("STORE_BREAKER_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "warden"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Lockout: LockoutConfig{
			Threshold:         getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			Window:            getEnvAsDuration("LOCKOUT_WINDOW", 30*time.Minute),
			Duration:          getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			ProgressiveDelays: delays,
		},
		Tokens: TokenConfig{
			UserRevocationTTL: getEnvAsDuration("TOKEN_USER_REVOCATION_TTL", 7*24*time.Hour),
		},
		History: AddressHistoryConfig{
			MaxEntries: getEnvAsInt("ADDRESS_HISTORY_MAX", 10),
			Retention:  getEnvAsDuration("ADDRESS_HISTORY_RETENTION", 90*24*time.Hour),
			StaleAfter: getEnvAsDuration("ADDRESS_STALE_AFTER", 30*24*time.Hour),
			ChurnLimit: getEnvAsInt("ADDRESS_CHURN_LIMIT", 3),
		},
		Monitor: MonitorConfig{
			TenantID:                getEnv("TENANT_ID", ""),
			BruteForceThreshold:     getEnvAsInt("BRUTE_FORCE_THRESHOLD", 5),
			BruteForceWindow:        getEnvAsDuration("BRUTE_FORCE_WINDOW", 15*time.Minute),
			RateEscalationThreshold: getEnvAsInt("RATE_ESCALATION_THRESHOLD", 100),
			RateEscalationWindow:    getEnvAsDuration("RATE_ESCALATION_WINDOW", 1*time.Minute),
			AlertCooldown:           getEnvAsDuration("ALERT_COOLDOWN", 5*time.Minute),
			ChannelTimeout:          getEnvAsDuration("ALERT_CHANNEL_TIMEOUT", 10*time.Second),
			BusinessHoursStart:      getEnvAsInt("BUSINESS_HOURS_START", 6),
			BusinessHoursEnd:        getEnvAsInt("BUSINESS_HOURS_END", 22),
		},
		Channels: ChannelsConfig{
			EmailEnabled:        getEnvAsBool("ALERT_EMAIL_ENABLED", false),
			AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
			EmailFrom:           getEnv("ALERT_EMAIL_FROM", ""),
			EmailTo:             getEnvAsList("ALERT_EMAIL_TO"),
			SlackWebhookURL:     getEnv("SLACK_WEBHOOK_URL", ""),
			SlackChannel:        getEnv("SLACK_CHANNEL", "#security-alerts"),
			WebhookURL:          getEnv("ALERT_WEBHOOK_URL", ""),
			WebhookSecret:       getEnv("ALERT_WEBHOOK_SECRET", ""),
			CloudWatchEnabled:   getEnvAsBool("CLOUDWATCH_ENABLED", false),
			CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "Warden/Security"),
		},
		Cleanup: CleanupConfig{
			Interval:       getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			AuditRetention: getEnvAsDuration("AUDIT_RETENTION", 90*24*time.Hour),
		},
	}

	// The audit sink is optional; without credentials events are only logged
	cfg.Database.Enabled = getEnvAsBool("AUDIT_SINK_ENABLED", cfg.Database.Password != "")
	if cfg.Database.Enabled && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required when AUDIT_SINK_ENABLED is set")
	}

	if cfg.Channels.EmailEnabled && (cfg.Channels.EmailFrom == "" || len(cfg.Channels.EmailTo) == 0) {
		return nil, fmt.Errorf("ALERT_EMAIL_FROM and ALERT_EMAIL_TO are required when ALERT_EMAIL_ENABLED is set")
	}

	if err := validateAdminSecret(adminSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Lockout.Threshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1")
	}
	if len(c.Lockout.ProgressiveDelays) == 0 {
		return fmt.Errorf("LOCKOUT_PROGRESSIVE_DELAYS must not be empty")
	}
	for i := 1; i < len(c.Lockout.ProgressiveDelays); i++ {
		if c.Lockout.ProgressiveDelays[i] < c.Lockout.ProgressiveDelays[i-1] {
			return fmt.Errorf("LOCKOUT_PROGRESSIVE_DELAYS must be non-decreasing")
		}
	}
	if c.History.MaxEntries < 1 {
		return fmt.Errorf("ADDRESS_HISTORY_MAX must be at least 1")
	}
	h := c.Monitor
	if h.BusinessHoursStart < 0 || h.BusinessHoursEnd > 24 || h.BusinessHoursStart >= h.BusinessHoursEnd {
		return fmt.Errorf("BUSINESS_HOURS_START/END must satisfy 0 <= start < end <= 24")
	}
	return nil
}

// validateAdminSecret enforces minimum security standards for the admin token secret
func validateAdminSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("ADMIN_JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDurationList(raw string) ([]time.Duration, error) {
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", p, err)
		}
		out = append(out, d)
	}
	return out, nil
}
