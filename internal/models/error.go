package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrBadRequest     = errors.New("bad request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("resource already exists")
	ErrInternalServer = errors.New("internal server error")

	// Validation errors, returned before any store access
	ErrInvalidIdentifier     = errors.New("invalid identifier")
	ErrInvalidIdentifierType = errors.New("invalid identifier type")
	ErrInvalidAddress        = errors.New("invalid network address")
	ErrInvalidPrincipal      = errors.New("invalid principal")
	ErrInvalidToken          = errors.New("invalid token")
	ErrInvalidDuration       = errors.New("duration must be positive")
	ErrUnknownEventType      = errors.New("unknown security event type")

	// Infrastructure state
	ErrMonitorClosed = errors.New("security monitor is shut down")
)
