package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ADMIN_JWT_SECRET", "test-secret-32-characters-long!!")
	t.Setenv("DB_PASSWORD", "")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	durations := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
		{"ShutdownTimeout", cfg.Server.ShutdownTimeout, 30 * time.Second},
		{"LockoutWindow", cfg.Lockout.Window, 30 * time.Minute},
		{"LockoutDuration", cfg.Lockout.Duration, 15 * time.Minute},
		{"UserRevocationTTL", cfg.Tokens.UserRevocationTTL, 7 * 24 * time.Hour},
		{"HistoryRetention", cfg.History.Retention, 90 * 24 * time.Hour},
		{"BruteForceWindow", cfg.Monitor.BruteForceWindow, 15 * time.Minute},
		{"RateEscalationWindow", cfg.Monitor.RateEscalationWindow, time.Minute},
		{"AlertCooldown", cfg.Monitor.AlertCooldown, 5 * time.Minute},
	}
	for _, tt := range durations {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if cfg.Lockout.Threshold != 5 {
		t.Errorf("Lockout.Threshold = %d, want 5", cfg.Lockout.Threshold)
	}
	wantDelays := []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second}
	if len(cfg.Lockout.ProgressiveDelays) != len(wantDelays) {
		t.Fatalf("ProgressiveDelays = %v, want %v", cfg.Lockout.ProgressiveDelays, wantDelays)
	}
	for i, d := range wantDelays {
		if cfg.Lockout.ProgressiveDelays[i] != d {
			t.Errorf("ProgressiveDelays[%d] = %v, want %v", i, cfg.Lockout.ProgressiveDelays[i], d)
		}
	}
	if cfg.History.MaxEntries != 10 {
		t.Errorf("History.MaxEntries = %d, want 10", cfg.History.MaxEntries)
	}
	if cfg.Monitor.BusinessHoursStart != 6 || cfg.Monitor.BusinessHoursEnd != 22 {
		t.Errorf("business hours = [%d,%d), want [6,22)", cfg.Monitor.BusinessHoursStart, cfg.Monitor.BusinessHoursEnd)
	}
	if cfg.Redis.KeyPrefix != "warden:" {
		t.Errorf("Redis.KeyPrefix = %q, want warden:", cfg.Redis.KeyPrefix)
	}
	if cfg.Database.Enabled {
		t.Error("Database.Enabled = true without DB_PASSWORD, want false")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("LOCKOUT_THRESHOLD", "3")
	t.Setenv("LOCKOUT_PROGRESSIVE_DELAYS", "1s, 3s")
	t.Setenv("ALERT_EMAIL_TO", "a@example.com, b@example.com")
	t.Setenv("DB_PASSWORD", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Lockout.Threshold != 3 {
		t.Errorf("Lockout.Threshold = %d, want 3", cfg.Lockout.Threshold)
	}
	if len(cfg.Lockout.ProgressiveDelays) != 2 || cfg.Lockout.ProgressiveDelays[1] != 3*time.Second {
		t.Errorf("ProgressiveDelays = %v, want [1s 3s]", cfg.Lockout.ProgressiveDelays)
	}
	if len(cfg.Channels.EmailTo) != 2 || cfg.Channels.EmailTo[1] != "b@example.com" {
		t.Errorf("EmailTo = %v", cfg.Channels.EmailTo)
	}
	if !cfg.Database.Enabled {
		t.Error("Database.Enabled = false with DB_PASSWORD set, want true")
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v, want 15s default", cfg.Server.ReadTimeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing admin secret",
			env:     map[string]string{"ADMIN_JWT_SECRET": ""},
			wantErr: "ADMIN_JWT_SECRET is required",
		},
		{
			name:    "short secret in production",
			env:     map[string]string{"ADMIN_JWT_SECRET": "sixteen-chars-ok", "ENV": "production"},
			wantErr: "at least 32 characters",
		},
		{
			name:    "bad delay list",
			env:     map[string]string{"LOCKOUT_PROGRESSIVE_DELAYS": "1s,soon"},
			wantErr: "LOCKOUT_PROGRESSIVE_DELAYS",
		},
		{
			name:    "decreasing delays",
			env:     map[string]string{"LOCKOUT_PROGRESSIVE_DELAYS": "5s,1s"},
			wantErr: "non-decreasing",
		},
		{
			name:    "zero threshold",
			env:     map[string]string{"LOCKOUT_THRESHOLD": "0"},
			wantErr: "LOCKOUT_THRESHOLD",
		},
		{
			name:    "inverted business hours",
			env:     map[string]string{"BUSINESS_HOURS_START": "22", "BUSINESS_HOURS_END": "6"},
			wantErr: "BUSINESS_HOURS",
		},
		{
			name:    "email without recipients",
			env:     map[string]string{"ALERT_EMAIL_ENABLED": "true", "ALERT_EMAIL_FROM": "alerts@example.com"},
			wantErr: "ALERT_EMAIL_TO",
		},
		{
			name:    "sink forced on without password",
			env:     map[string]string{"AUDIT_SINK_ENABLED": "true"},
			wantErr: "DB_PASSWORD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAdminSecret_RejectsWeakValues(t *testing.T) {
	if err := validateAdminSecret("changeme", "development"); err == nil {
		t.Error("expected short weak secret to be rejected")
	}
	if err := validateAdminSecret("a-perfectly-reasonable-dev-secret", "development"); err != nil {
		t.Errorf("validateAdminSecret() = %v, want nil", err)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "warden", SSLMode: "require"}
	want := "host=db port=5433 user=u password=p dbname=warden sslmode=require"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
