package services

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/warden/internal/metrics"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/google/uuid"
)

// AlertChannel delivers an alert to a single destination
type AlertChannel interface {
	Name() string
	Send(ctx context.Context, alert *models.Alert) error
}

// MonitorConfig holds configuration for the security monitor
type MonitorConfig struct {
	TenantID                string
	BruteForceThreshold     int
	BruteForceWindow        time.Duration
	RateEscalationThreshold int
	RateEscalationWindow    time.Duration
	AlertCooldown           time.Duration
	ChannelTimeout          time.Duration
	BusinessHoursStart      int // inclusive local hour
	BusinessHoursEnd        int // exclusive local hour
	Location                *time.Location
}

// DefaultMonitorConfig returns the default monitor settings
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		BruteForceThreshold:     5,
		BruteForceWindow:        15 * time.Minute,
		RateEscalationThreshold: 100,
		RateEscalationWindow:    time.Minute,
		AlertCooldown:           5 * time.Minute,
		ChannelTimeout:          10 * time.Second,
		BusinessHoursStart:      6,
		BusinessHoursEnd:        22,
		Location:                time.Local,
	}
}

// patternCounter is a per-process windowed counter. It restarts at 1 when
// its window has elapsed instead of sliding.
type patternCounter struct {
	count       int
	windowStart time.Time
	usernames   map[string]struct{}
}

func (c *patternCounter) hit(now time.Time, window time.Duration) {
	if now.Sub(c.windowStart) > window {
		c.count = 0
		c.windowStart = now
		clear(c.usernames)
	}
	c.count++
}

type monitorStats struct {
	eventsTotal      int64
	eventsByType     map[models.EventType]int64
	eventsBySeverity map[models.Severity]int64
	alertsSent       int64
	alertsBySeverity map[models.Severity]int64
	alertsSuppressed int64
	channelFailures  int64
	lastAlertAt      *time.Time
	since            time.Time
}

func newMonitorStats(now time.Time) monitorStats {
	return monitorStats{
		eventsByType:     make(map[models.EventType]int64),
		eventsBySeverity: make(map[models.Severity]int64),
		alertsBySeverity: make(map[models.Severity]int64),
		since:            now,
	}
}

// SecurityMonitor correlates security events into deduplicated alerts.
//
// Pattern counters and cooldowns are process-local; separate instances
// detect and alert independently. Alert delivery and audit writes happen on
// background goroutines so TrackEvent never waits on a channel or the sink.
type SecurityMonitor struct {
	config   MonitorConfig
	channels []AlertChannel
	audit    *AuditForwarder
	logger   *slog.Logger
	now      func() time.Time

	mu             sync.Mutex
	bruteForce     map[string]*patternCounter
	rateEscalation map[string]*patternCounter
	cooldowns      map[string]time.Time
	stats          monitorStats
	closed         bool

	inflight sync.WaitGroup
}

// NewSecurityMonitor creates a new SecurityMonitor
func NewSecurityMonitor(config MonitorConfig, channels []AlertChannel, audit *AuditForwarder, logger *slog.Logger) *SecurityMonitor {
	defaults := DefaultMonitorConfig()
	if config.BruteForceThreshold < 1 {
		config.BruteForceThreshold = defaults.BruteForceThreshold
	}
	if config.BruteForceWindow <= 0 {
		config.BruteForceWindow = defaults.BruteForceWindow
	}
	if config.RateEscalationThreshold < 1 {
		config.RateEscalationThreshold = defaults.RateEscalationThreshold
	}
	if config.RateEscalationWindow <= 0 {
		config.RateEscalationWindow = defaults.RateEscalationWindow
	}
	if config.AlertCooldown <= 0 {
		config.AlertCooldown = defaults.AlertCooldown
	}
	if config.ChannelTimeout <= 0 {
		config.ChannelTimeout = defaults.ChannelTimeout
	}
	if config.BusinessHoursStart == 0 && config.BusinessHoursEnd == 0 {
		config.BusinessHoursStart = defaults.BusinessHoursStart
		config.BusinessHoursEnd = defaults.BusinessHoursEnd
	}
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if audit == nil {
		audit = NewAuditForwarder(nil, logger)
	}

	return &SecurityMonitor{
		config:         config,
		channels:       channels,
		audit:          audit,
		logger:         logger,
		now:            time.Now,
		bruteForce:     make(map[string]*patternCounter),
		rateEscalation: make(map[string]*patternCounter),
		cooldowns:      make(map[string]time.Time),
		stats:          newMonitorStats(time.Now()),
	}
}

// WithClock replaces the time source, for tests
func (m *SecurityMonitor) WithClock(now func() time.Time) *SecurityMonitor {
	m.mu.Lock()
	m.now = now
	m.stats.since = now()
	m.mu.Unlock()
	return m
}

// TrackEvent records a typed security event and runs the pattern detectors on it.
// Only an unknown type or a closed monitor produce an error.
func (m *SecurityMonitor) TrackEvent(ctx context.Context, eventType models.EventType, metadata models.EventMetadata) (*models.SecurityEvent, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("%q: %w", eventType, models.ErrUnknownEventType)
	}

	event, err := m.record(ctx, eventType, metadata)
	if err != nil {
		return nil, err
	}

	switch event.Type {
	case models.EventFailedLogin:
		m.detectBruteForce(ctx, event)
	case models.EventRateLimitExceeded:
		m.detectRateEscalation(ctx, event)
	case models.EventInjectionAttempt, models.EventMaliciousUpload,
		models.EventPrivilegeEscalation, models.EventBruteForceDetected:
		m.sendAlert(ctx, event, models.SeverityCritical)
	case models.EventSuccessfulLogin, models.EventAccountLocked, models.EventUnusualActivity,
		models.EventUnauthorizedAccess, models.EventTokenRevoked, models.EventSuspiciousAddress,
		models.EventCertificateExpiring, models.EventTimeAnomaly, models.EventGeographicAnomaly:
		// recorded only
	}

	if event.Type != models.EventTimeAnomaly {
		m.detectTimeAnomaly(ctx, event)
	}

	return event, nil
}

// record stamps, counts and forwards an event without running detectors
func (m *SecurityMonitor) record(ctx context.Context, eventType models.EventType, metadata models.EventMetadata) (*models.SecurityEvent, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, models.ErrMonitorClosed
	}

	event := &models.SecurityEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Severity:  eventType.Severity(),
		Timestamp: m.now(),
		TenantID:  m.config.TenantID,
		Metadata:  metadata.Clone(),
	}

	m.stats.eventsTotal++
	m.stats.eventsByType[event.Type]++
	m.stats.eventsBySeverity[event.Severity]++
	m.inflight.Add(1)
	m.mu.Unlock()

	metrics.SecurityEventsTotal.WithLabelValues(string(event.Type), string(event.Severity)).Inc()

	go func() {
		defer m.inflight.Done()
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.ChannelTimeout)
		defer cancel()
		m.audit.RecordEvent(sinkCtx, event)
	}()

	return event, nil
}

func (m *SecurityMonitor) detectBruteForce(ctx context.Context, event *models.SecurityEvent) {
	address := canonicalAddress(event.Metadata.Address())
	if address == "" {
		return
	}

	m.mu.Lock()
	now := m.now()
	counter, ok := m.bruteForce[address]
	if !ok {
		counter = &patternCounter{windowStart: now, usernames: make(map[string]struct{})}
		m.bruteForce[address] = counter
	}
	counter.hit(now, m.config.BruteForceWindow)
	if username := event.Metadata.Username(); username != "" {
		counter.usernames[username] = struct{}{}
	}

	triggered := counter.count >= m.config.BruteForceThreshold
	var count int
	var usernames []string
	if triggered {
		count = counter.count
		usernames = slices.Sorted(maps.Keys(counter.usernames))
		delete(m.bruteForce, address)
	}
	metrics.PatternCounters.Set(float64(len(m.bruteForce) + len(m.rateEscalation)))
	m.mu.Unlock()

	if !triggered {
		return
	}

	derived, err := m.record(ctx, models.EventBruteForceDetected, models.EventMetadata{
		models.MetaAddress:     address,
		models.MetaCount:       count,
		models.MetaUsernames:   usernames,
		models.MetaUniqueUsers: len(usernames),
		models.MetaWindow:      m.config.BruteForceWindow.String(),
	})
	if err != nil {
		return
	}
	m.sendAlert(ctx, derived, models.SeverityCritical)
}

func (m *SecurityMonitor) detectRateEscalation(ctx context.Context, event *models.SecurityEvent) {
	address := canonicalAddress(event.Metadata.Address())
	if address == "" {
		return
	}
	endpoint := event.Metadata.Endpoint()
	key := address + "|" + endpoint

	m.mu.Lock()
	now := m.now()
	counter, ok := m.rateEscalation[key]
	if !ok {
		counter = &patternCounter{windowStart: now}
		m.rateEscalation[key] = counter
	}
	counter.hit(now, m.config.RateEscalationWindow)

	triggered := counter.count >= m.config.RateEscalationThreshold
	count := counter.count
	if triggered {
		delete(m.rateEscalation, key)
	}
	metrics.PatternCounters.Set(float64(len(m.bruteForce) + len(m.rateEscalation)))
	m.mu.Unlock()

	if !triggered {
		return
	}

	derived, err := m.record(ctx, models.EventUnusualActivity, models.EventMetadata{
		models.MetaAddress:  address,
		models.MetaEndpoint: endpoint,
		models.MetaCount:    count,
		models.MetaWindow:   m.config.RateEscalationWindow.String(),
	})
	if err != nil {
		return
	}
	m.sendAlert(ctx, derived, models.SeverityWarning)
}

func (m *SecurityMonitor) detectTimeAnomaly(ctx context.Context, event *models.SecurityEvent) {
	principal := event.Metadata.Principal()
	if principal == "" {
		return
	}

	hour := event.Timestamp.In(m.config.Location).Hour()
	if hour >= m.config.BusinessHoursStart && hour < m.config.BusinessHoursEnd {
		return
	}

	_, _ = m.record(ctx, models.EventTimeAnomaly, models.EventMetadata{
		models.MetaPrincipal:   principal,
		models.MetaHour:        hour,
		models.MetaTriggeredBy: string(event.Type),
		models.MetaAddress:     event.Metadata.Address(),
	})
}

// sendAlert emits an alert for event unless its dedup key is cooling down.
// Suppressed alerts are dropped, not queued.
func (m *SecurityMonitor) sendAlert(ctx context.Context, event *models.SecurityEvent, severity models.Severity) *models.Alert {
	key := dedupKey(event)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	now := m.now()
	if last, ok := m.cooldowns[key]; ok && now.Sub(last) < m.config.AlertCooldown {
		m.stats.alertsSuppressed++
		m.mu.Unlock()
		metrics.SecurityAlertsSuppressed.WithLabelValues(string(event.Type)).Inc()
		m.logger.Debug("alert suppressed by cooldown", slog.String("dedup_key", key))
		return nil
	}
	m.cooldowns[key] = now
	m.stats.alertsSent++
	m.stats.alertsBySeverity[severity]++
	m.stats.lastAlertAt = &now
	m.inflight.Add(1)
	m.mu.Unlock()

	alert := &models.Alert{
		ID:           uuid.New(),
		Type:         event.Type,
		Severity:     severity,
		Timestamp:    now,
		TenantID:     event.TenantID,
		Description:  alertDescription(event),
		DedupKey:     key,
		Metadata:     event.Metadata.Clone(),
		ChannelsSent: []string{},
	}
	metrics.SecurityAlertsTotal.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()

	go func() {
		defer m.inflight.Done()
		m.deliver(context.WithoutCancel(ctx), alert)
	}()

	return alert
}

// deliver fans alert out to every channel in order, then records it in the audit sink.
// A failing channel does not stop delivery to the rest.
func (m *SecurityMonitor) deliver(ctx context.Context, alert *models.Alert) {
	for _, ch := range m.channels {
		sendCtx, cancel := context.WithTimeout(ctx, m.config.ChannelTimeout)
		err := ch.Send(sendCtx, alert)
		cancel()

		if err != nil {
			m.mu.Lock()
			m.stats.channelFailures++
			m.mu.Unlock()
			metrics.AlertDeliveries.WithLabelValues(ch.Name(), "failure").Inc()
			m.logger.Error("alert delivery failed",
				slog.String("channel", ch.Name()),
				slog.String("alert_id", alert.ID.String()),
				slog.Any("error", err))
			continue
		}

		metrics.AlertDeliveries.WithLabelValues(ch.Name(), "success").Inc()
		alert.ChannelsSent = append(alert.ChannelsSent, ch.Name())
	}

	sinkCtx, cancel := context.WithTimeout(ctx, m.config.ChannelTimeout)
	defer cancel()
	m.audit.RecordAlert(sinkCtx, alert)
}

// GetMetrics returns a snapshot of the monitor counters
func (m *SecurityMonitor) GetMetrics() *models.MonitorMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := &models.MonitorMetrics{
		EventsTotal:       m.stats.eventsTotal,
		EventsByType:      maps.Clone(m.stats.eventsByType),
		EventsBySeverity:  maps.Clone(m.stats.eventsBySeverity),
		AlertsSent:        m.stats.alertsSent,
		AlertsBySeverity:  maps.Clone(m.stats.alertsBySeverity),
		AlertsSuppressed:  m.stats.alertsSuppressed,
		ChannelFailures:   m.stats.channelFailures,
		SinkFailures:      m.audit.Failures(),
		ActiveCounters:    len(m.bruteForce) + len(m.rateEscalation),
		ActiveCooldowns:   len(m.cooldowns),
		CollectingSinceAt: m.stats.since,
	}
	if m.stats.lastAlertAt != nil {
		last := *m.stats.lastAlertAt
		snapshot.LastAlertAt = &last
	}
	return snapshot
}

// HealthCheck reports whether alerts can currently reach anyone
func (m *SecurityMonitor) HealthCheck() *models.MonitorHealth {
	m.mu.Lock()
	closed := m.closed
	active := len(m.bruteForce) + len(m.rateEscalation)
	channelFailures := m.stats.channelFailures
	alertsSent := m.stats.alertsSent
	m.mu.Unlock()

	health := &models.MonitorHealth{
		Status:              "healthy",
		Channels:            make([]string, 0, len(m.channels)),
		AuditSinkConfigured: m.audit.Configured(),
		ActiveCounters:      active,
	}
	for _, ch := range m.channels {
		health.Channels = append(health.Channels, ch.Name())
	}

	if len(m.channels) == 0 {
		health.Issues = append(health.Issues, "no alert channels configured")
	}
	if !health.AuditSinkConfigured {
		health.Issues = append(health.Issues, "audit sink not configured")
	}
	if alertsSent > 0 && len(m.channels) > 0 && channelFailures >= alertsSent*int64(len(m.channels)) {
		health.Issues = append(health.Issues, "every alert delivery has failed")
	}
	if sinkFailures := m.audit.Failures(); sinkFailures > 0 {
		health.Issues = append(health.Issues, fmt.Sprintf("%d audit sink writes failed", sinkFailures))
	}

	if len(health.Issues) > 0 {
		health.Status = "degraded"
	}
	if closed {
		health.Status = "unhealthy"
		health.Issues = append(health.Issues, "monitor is shut down")
	}
	return health
}

// Reset clears all counters, cooldowns and statistics
func (m *SecurityMonitor) Reset() {
	m.mu.Lock()
	clear(m.bruteForce)
	clear(m.rateEscalation)
	clear(m.cooldowns)
	m.stats = newMonitorStats(m.now())
	m.mu.Unlock()

	m.audit.ResetFailures()
	metrics.PatternCounters.Set(0)
	m.logger.Info("security monitor reset")
}

// PruneExpired drops counters whose window has elapsed and cooldowns that have run out.
// It returns the number of entries removed.
func (m *SecurityMonitor) PruneExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, c := range m.bruteForce {
		if now.Sub(c.windowStart) > m.config.BruteForceWindow {
			delete(m.bruteForce, key)
			removed++
		}
	}
	for key, c := range m.rateEscalation {
		if now.Sub(c.windowStart) > m.config.RateEscalationWindow {
			delete(m.rateEscalation, key)
			removed++
		}
	}
	for key, at := range m.cooldowns {
		if now.Sub(at) >= m.config.AlertCooldown {
			delete(m.cooldowns, key)
			removed++
		}
	}

	metrics.PatternCounters.Set(float64(len(m.bruteForce) + len(m.rateEscalation)))
	return removed
}

// Drain waits for in-flight alert deliveries and audit writes
func (m *SecurityMonitor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining security monitor: %w", ctx.Err())
	}
}

// Shutdown stops accepting events and waits for in-flight work until ctx expires
func (m *SecurityMonitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	return m.Drain(ctx)
}

// dedupKey groups alerts by type and the most specific subject available
func dedupKey(event *models.SecurityEvent) string {
	subject := canonicalAddress(event.Metadata.Address())
	if subject == "" {
		subject = event.Metadata.Principal()
	}
	if subject == "" {
		subject = "unknown"
	}
	return string(event.Type) + ":" + subject
}

// canonicalAddress folds IPv4-mapped and mixed-case IPv6 forms of one host
// into a single key. Anything that does not parse is returned unchanged.
func canonicalAddress(address string) string {
	address = strings.TrimSpace(address)
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return address
	}
	return addr.Unmap().WithZone("").String()
}

func alertDescription(event *models.SecurityEvent) string {
	md := event.Metadata
	address := md.Address()
	if address == "" {
		address = "unknown address"
	}

	switch event.Type {
	case models.EventBruteForceDetected:
		desc := fmt.Sprintf("Brute force attack detected from %s: %v failed logins", address, md[models.MetaCount])
		if users, ok := md[models.MetaUsernames].([]string); ok && len(users) > 0 {
			desc += " targeting " + strings.Join(users, ", ")
		}
		return desc
	case models.EventUnusualActivity:
		return fmt.Sprintf("Rate limit escalation from %s on %s: %v rejected requests", address, md.Endpoint(), md[models.MetaCount])
	case models.EventInjectionAttempt:
		return fmt.Sprintf("Injection attempt from %s on %s", address, md.Endpoint())
	case models.EventMaliciousUpload:
		return fmt.Sprintf("Malicious file upload blocked from %s", address)
	case models.EventPrivilegeEscalation:
		return fmt.Sprintf("Privilege escalation attempt by %s from %s", principalOrUnknown(md), address)
	default:
		return fmt.Sprintf("Security event %s from %s", event.Type, address)
	}
}

func principalOrUnknown(md models.EventMetadata) string {
	if p := md.Principal(); p != "" {
		return p
	}
	return "unknown principal"
}
