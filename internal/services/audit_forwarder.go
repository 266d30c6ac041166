package services

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/BradenHooton/warden/internal/metrics"
	"github.com/BradenHooton/warden/internal/models"
)

// AuditSink persists security events and alerts to the central audit store
type AuditSink interface {
	InsertSecurityEvent(ctx context.Context, event *models.SecurityEvent) error
	InsertSecurityAlert(ctx context.Context, alert *models.Alert) error
}

// AuditForwarder dual-writes security records: immediate slog output plus a
// best-effort insert into the audit sink. Sink errors are logged and counted,
// never returned.
type AuditForwarder struct {
	sink     AuditSink
	logger   *slog.Logger
	failures atomic.Int64
}

// NewAuditForwarder creates a new AuditForwarder. sink may be nil, in which case records are only logged.
func NewAuditForwarder(sink AuditSink, logger *slog.Logger) *AuditForwarder {
	return &AuditForwarder{
		sink:   sink,
		logger: logger,
	}
}

// Configured reports whether a sink is attached
func (f *AuditForwarder) Configured() bool {
	return f.sink != nil
}

// Failures returns the number of sink writes that failed since the last reset
func (f *AuditForwarder) Failures() int64 {
	return f.failures.Load()
}

// ResetFailures zeroes the failure count
func (f *AuditForwarder) ResetFailures() {
	f.failures.Store(0)
}

// RecordEvent logs event and forwards it to the sink
func (f *AuditForwarder) RecordEvent(ctx context.Context, event *models.SecurityEvent) {
	f.logger.Log(ctx, severityLevel(event.Severity), "security event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.String("severity", string(event.Severity)),
		slog.Any("metadata", event.Metadata),
	)

	if f.sink == nil {
		return
	}
	if err := f.sink.InsertSecurityEvent(ctx, event); err != nil {
		f.failures.Add(1)
		metrics.AuditSinkFailures.WithLabelValues("event").Inc()
		f.logger.ErrorContext(ctx, "failed to persist security event",
			slog.String("event_type", string(event.Type)),
			slog.Any("error", err),
		)
	}
}

// RecordAlert logs alert and forwards it to the sink
func (f *AuditForwarder) RecordAlert(ctx context.Context, alert *models.Alert) {
	f.logger.Log(ctx, severityLevel(alert.Severity), "security alert",
		slog.String("alert_id", alert.ID.String()),
		slog.String("alert_type", string(alert.Type)),
		slog.String("severity", string(alert.Severity)),
		slog.String("description", alert.Description),
		slog.Any("channels_sent", alert.ChannelsSent),
	)

	if f.sink == nil {
		return
	}
	if err := f.sink.InsertSecurityAlert(ctx, alert); err != nil {
		f.failures.Add(1)
		metrics.AuditSinkFailures.WithLabelValues("alert").Inc()
		f.logger.ErrorContext(ctx, "failed to persist security alert",
			slog.String("alert_type", string(alert.Type)),
			slog.Any("error", err),
		)
	}
}

func severityLevel(s models.Severity) slog.Level {
	switch s {
	case models.SeverityCritical, models.SeverityError:
		return slog.LevelError
	case models.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
