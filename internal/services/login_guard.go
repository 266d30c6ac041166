package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/warden/internal/models"
)

// Reasons a login attempt may be refused
const (
	DenyEmailLocked   = "email_locked"
	DenyAddressLocked = "address_locked"
	DenyManualLock    = "manually_locked"
)

// LoginAttempt identifies who is authenticating and from where
type LoginAttempt struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Address   string `json:"address" validate:"required,ip"`
	UserAgent string `json:"user_agent,omitempty" validate:"max=512"`
}

// LoginDecision is the verdict for a login attempt
type LoginDecision struct {
	Allowed           bool                  `json:"allowed"`
	Reason            string                `json:"reason,omitempty"`
	RetryAfterSeconds int                   `json:"retry_after_seconds,omitempty"`
	DelayMillis       int64                 `json:"delay_ms"`
	Email             *models.LockoutStatus `json:"email"`
	Address           *models.LockoutStatus `json:"address"`
}

// LoginSuccess is the outcome of reporting a successful login
type LoginSuccess struct {
	Analysis *models.AddressAnalysis `json:"analysis"`
}

// LoginGuard combines the failure tracker, the address history and the
// security monitor into a single pre-login and post-login flow.
// Both the email and the source address are tracked so that one address
// spraying many accounts is locked alongside each targeted account.
type LoginGuard struct {
	lockout *LockoutService
	history *AddressHistoryService
	monitor *SecurityMonitor
	logger  *slog.Logger
}

// NewLoginGuard creates a new LoginGuard
func NewLoginGuard(lockout *LockoutService, history *AddressHistoryService, monitor *SecurityMonitor, logger *slog.Logger) *LoginGuard {
	return &LoginGuard{
		lockout: lockout,
		history: history,
		monitor: monitor,
		logger:  logger,
	}
}

// Check decides whether an attempt may proceed without recording anything
func (g *LoginGuard) Check(ctx context.Context, attempt LoginAttempt) (*LoginDecision, error) {
	emailStatus, err := g.lockout.CheckLockout(ctx, attempt.Email, models.IdentifierEmail)
	if err != nil {
		return nil, err
	}
	addrStatus, err := g.lockout.CheckLockout(ctx, attempt.Address, models.IdentifierAddress)
	if err != nil {
		return nil, err
	}

	decision := g.decide(emailStatus, addrStatus)
	if !decision.Allowed {
		return decision, nil
	}

	for _, id := range []struct {
		value  string
		idType models.IdentifierType
	}{
		{attempt.Email, models.IdentifierEmail},
		{attempt.Address, models.IdentifierAddress},
	} {
		locked, err := g.lockout.IsManuallyLocked(ctx, id.value, id.idType)
		if err != nil {
			return nil, err
		}
		if locked {
			decision.Allowed = false
			decision.Reason = DenyManualLock
			return decision, nil
		}
	}

	return decision, nil
}

// RecordFailure registers a failed login against both identifiers and
// reports it to the monitor
func (g *LoginGuard) RecordFailure(ctx context.Context, attempt LoginAttempt) (*LoginDecision, error) {
	// Validate both identifiers before writing either
	if _, err := g.lockout.CheckLockout(ctx, attempt.Address, models.IdentifierAddress); err != nil {
		return nil, err
	}

	emailStatus, err := g.lockout.RecordFailure(ctx, attempt.Email, models.IdentifierEmail)
	if err != nil {
		return nil, err
	}
	addrStatus, err := g.lockout.RecordFailure(ctx, attempt.Address, models.IdentifierAddress)
	if err != nil {
		return nil, err
	}

	g.track(ctx, models.EventFailedLogin, models.EventMetadata{
		models.MetaAddress:   addrStatus.Identifier,
		models.MetaUsername:  emailStatus.Identifier,
		models.MetaUserAgent: attempt.UserAgent,
	})

	for _, status := range []*models.LockoutStatus{emailStatus, addrStatus} {
		if !status.JustLocked {
			continue
		}
		metadata := models.EventMetadata{
			models.MetaAddress:        addrStatus.Identifier,
			models.MetaIdentifierType: string(status.Type),
			models.MetaIdentifier:     status.Identifier,
			models.MetaCount:          status.FailedAttempts,
		}
		// only an account lock is attributed to a principal
		if status.Type == models.IdentifierEmail {
			metadata[models.MetaPrincipal] = status.Identifier
		}
		g.track(ctx, models.EventAccountLocked, metadata)
	}

	return g.decide(emailStatus, addrStatus), nil
}

// RecordSuccess clears the account's failures, records the address sighting
// and forwards a suspicious-address event when the sighting is flagged.
// Address failures are kept since other accounts may share the address.
func (g *LoginGuard) RecordSuccess(ctx context.Context, attempt LoginAttempt, principal string) (*LoginSuccess, error) {
	if principal == "" {
		principal = attempt.Email
	}
	if _, err := g.lockout.CheckLockout(ctx, attempt.Email, models.IdentifierEmail); err != nil {
		return nil, err
	}

	var metadata map[string]string
	if attempt.UserAgent != "" {
		metadata = map[string]string{models.MetaUserAgent: attempt.UserAgent}
	}
	analysis, err := g.history.RecordSighting(ctx, principal, attempt.Address, metadata)
	if err != nil {
		return nil, err
	}

	if err := g.lockout.ClearFailures(ctx, attempt.Email, models.IdentifierEmail); err != nil {
		return nil, err
	}

	g.track(ctx, models.EventSuccessfulLogin, models.EventMetadata{
		models.MetaAddress:   analysis.Address,
		models.MetaPrincipal: principal,
		models.MetaUserAgent: attempt.UserAgent,
	})

	if analysis.IsSuspicious {
		g.track(ctx, models.EventSuspiciousAddress, models.EventMetadata{
			models.MetaAddress:   analysis.Address,
			models.MetaPrincipal: principal,
			models.MetaReasons:   analysis.Reasons,
		})
	}

	return &LoginSuccess{Analysis: analysis}, nil
}

// decide folds two statuses into one verdict. The longer lock wins and
// the delay follows the identifier with more recent failures.
func (g *LoginGuard) decide(emailStatus, addrStatus *models.LockoutStatus) *LoginDecision {
	decision := &LoginDecision{
		Allowed: true,
		Email:   emailStatus,
		Address: addrStatus,
	}

	if emailStatus.IsLocked {
		decision.Allowed = false
		decision.Reason = DenyEmailLocked
		decision.RetryAfterSeconds = emailStatus.RetryAfterSeconds
	}
	if addrStatus.IsLocked && addrStatus.RetryAfterSeconds > decision.RetryAfterSeconds {
		decision.Allowed = false
		decision.Reason = DenyAddressLocked
		decision.RetryAfterSeconds = addrStatus.RetryAfterSeconds
	}

	failed := max(emailStatus.FailedAttempts, addrStatus.FailedAttempts)
	decision.DelayMillis = g.lockout.GetProgressiveDelay(failed).Milliseconds()
	return decision
}

func (g *LoginGuard) track(ctx context.Context, eventType models.EventType, metadata models.EventMetadata) {
	if _, err := g.monitor.TrackEvent(ctx, eventType, metadata); err != nil {
		level := slog.LevelError
		if errors.Is(err, models.ErrMonitorClosed) {
			level = slog.LevelDebug
		}
		g.logger.Log(ctx, level, "failed to track login event",
			slog.String("event_type", string(eventType)),
			slog.Any("error", err))
	}
}

// Delay returns the progressive delay as a duration
func (d *LoginDecision) Delay() time.Duration {
	return time.Duration(d.DelayMillis) * time.Millisecond
}
