// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event engine
	SecurityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_security_events_total",
			Help: "Total number of security events tracked",
		},
		[]string{"type", "severity"},
	)

	SecurityAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_security_alerts_total",
			Help: "Total number of security alerts emitted",
		},
		[]string{"type", "severity"},
	)

	SecurityAlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_security_alerts_suppressed_total",
			Help: "Alerts dropped because their dedup key was still cooling down",
		},
		[]string{"type"},
	)

	AlertDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_alert_deliveries_total",
			Help: "Alert deliveries per notification channel",
		},
		[]string{"channel", "outcome"}, // outcome: success, failure
	)

	AuditSinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_audit_sink_failures_total",
			Help: "Audit sink writes that failed and were swallowed",
		},
		[]string{"kind"}, // kind: event, alert
	)

	PatternCounters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_pattern_counters",
			Help: "Number of in-memory pattern counters currently tracked",
		},
	)

	// Trackers
	LockoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_lockouts_total",
			Help: "Identifiers that crossed the failure threshold",
		},
		[]string{"identifier_type"},
	)

	RevocationChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_revocation_checks_total",
			Help: "Token revocation lookups",
		},
		[]string{"kind", "outcome"}, // kind: token, principal; outcome: revoked, valid, fail_open
	)

	SuspiciousSightingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_suspicious_address_sightings_total",
			Help: "Address sightings flagged as suspicious, by reason",
		},
		[]string{"reason"},
	)

	// Backing store
	StoreFallbackActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_store_fallback_active",
			Help: "1 while the in-process fallback store is serving requests",
		},
	)

	StoreBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_store_breaker_transitions_total",
			Help: "Circuit breaker state transitions for the remote store",
		},
		[]string{"from", "to"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_store_operation_errors_total",
			Help: "Remote store operations that failed",
		},
		[]string{"operation"},
	)
)
