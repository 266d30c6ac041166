package models

import "time"

// IdentifierType selects the namespace a lockout identifier is tracked under
type IdentifierType string

const (
	IdentifierEmail   IdentifierType = "email"
	IdentifierAddress IdentifierType = "address"
)

// Valid reports whether t is one of the known identifier types
func (t IdentifierType) Valid() bool {
	switch t {
	case IdentifierEmail, IdentifierAddress:
		return true
	}
	return false
}

// LockoutStatus is the derived lock state for one identifier
type LockoutStatus struct {
	Identifier        string         `json:"identifier"`
	Type              IdentifierType `json:"type"`
	IsLocked          bool           `json:"is_locked"`
	FailedAttempts    int            `json:"failed_attempts"`
	RemainingAttempts int            `json:"remaining_attempts"`
	LockedUntil       *time.Time     `json:"locked_until,omitempty"`
	RemainingLockout  time.Duration  `json:"-"`
	RetryAfterSeconds int            `json:"retry_after_seconds,omitempty"`
	JustLocked        bool           `json:"-"` // set by the failure that crossed the threshold
}

// LockoutStats summarizes the failure window tracker state
type LockoutStats struct {
	Backend          string        `json:"backend"`
	TrackedEmails    int           `json:"tracked_emails"`
	TrackedAddresses int           `json:"tracked_addresses"`
	ManualLocks      int           `json:"manual_locks"`
	Threshold        int           `json:"threshold"`
	Window           time.Duration `json:"window"`
	LockoutDuration  time.Duration `json:"lockout_duration"`
}
