package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// SecurityAuditRepository is the central audit sink for security events and alerts
type SecurityAuditRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityAuditRepository creates a new SecurityAuditRepository
func NewSecurityAuditRepository(db *database.DB) *SecurityAuditRepository {
	return &SecurityAuditRepository{pool: db.Pool}
}

// AlertFilter narrows ListAlerts
type AlertFilter struct {
	TenantID string
	Type     models.EventType
	Since    time.Time
	Limit    int
	Offset   int
}

// InsertSecurityEvent stores one event; re-inserting the same ID is a no-op
func (r *SecurityAuditRepository) InsertSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (id, tenant_id, event_type, severity, address, principal, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.TenantID, string(event.Type), string(event.Severity),
		event.Metadata.Address(), event.Metadata.Principal(), event.Metadata, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", database.MapPostgresError(err))
	}
	return nil
}

// InsertSecurityAlert stores one alert; re-inserting the same ID is a no-op
func (r *SecurityAuditRepository) InsertSecurityAlert(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO security_alerts (id, tenant_id, alert_type, severity, description, dedup_key, metadata, channels_sent, raised_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	channels := alert.ChannelsSent
	if channels == nil {
		channels = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		alert.ID, alert.TenantID, string(alert.Type), string(alert.Severity),
		alert.Description, alert.DedupKey, alert.Metadata, channels, alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security alert: %w", database.MapPostgresError(err))
	}
	return nil
}

func scanAlertRow(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var alertType, severity string

	err := row.Scan(
		&alert.ID, &alert.TenantID, &alertType, &severity,
		&alert.Description, &alert.DedupKey, &alert.Metadata, &alert.ChannelsSent, &alert.Timestamp,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	alert.Type = models.EventType(alertType)
	alert.Severity = models.Severity(severity)
	return &alert, nil
}

func scanAlertRows(rows pgx.Rows) ([]*models.Alert, error) {
	defer rows.Close()

	alerts := make([]*models.Alert, 0)
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security alert rows: %w", err)
	}
	return alerts, nil
}

// ListAlerts returns alerts newest first
func (r *SecurityAuditRepository) ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	query := `
		SELECT id, tenant_id, alert_type, severity, description, dedup_key, metadata, channels_sent, raised_at
		FROM security_alerts
		WHERE tenant_id = $1
		  AND ($2 = '' OR alert_type = $2)
		  AND raised_at >= $3
		ORDER BY raised_at DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := r.pool.Query(ctx, query,
		filter.TenantID, string(filter.Type), filter.Since, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query security alerts: %w", err)
	}

	return scanAlertRows(rows)
}

// GetAlert returns a single alert by ID
func (r *SecurityAuditRepository) GetAlert(ctx context.Context, tenantID string, id uuid.UUID) (*models.Alert, error) {
	query := `
		SELECT id, tenant_id, alert_type, severity, description, dedup_key, metadata, channels_sent, raised_at
		FROM security_alerts
		WHERE tenant_id = $1 AND id = $2
	`

	alert, err := scanAlertRow(r.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get security alert: %w", err)
	}
	return alert, nil
}

// CountEventsByType counts the tenant's events since the given time, keyed by type
func (r *SecurityAuditRepository) CountEventsByType(ctx context.Context, tenantID string, since time.Time) (map[models.EventType]int64, error) {
	query := `
		SELECT event_type, COUNT(*)
		FROM security_events
		WHERE tenant_id = $1 AND occurred_at >= $2
		GROUP BY event_type
	`

	rows, err := r.pool.Query(ctx, query, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count security events: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.EventType]int64)
	for rows.Next() {
		var eventType string
		var n int64
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[models.EventType(eventType)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event counts: %w", err)
	}
	return counts, nil
}

// DeleteOlderThan removes events and alerts recorded before cutoff
func (r *SecurityAuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (events, alerts int64, err error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM security_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to purge security events: %w", err)
	}
	events = res.RowsAffected()

	res, err = r.pool.Exec(ctx, `DELETE FROM security_alerts WHERE raised_at < $1`, cutoff)
	if err != nil {
		return events, 0, fmt.Errorf("failed to purge security alerts: %w", err)
	}
	return events, res.RowsAffected(), nil
}
