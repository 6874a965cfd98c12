package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternalServer = errors.New("internal server error")

	// Error taxonomy for the security layer
	ErrValidation     = errors.New("validation failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrRateLimited    = errors.New("too many requests")
	ErrIntegrity      = errors.New("integrity check failed")
	ErrTransient      = errors.New("service temporarily unavailable")
)

// Domain errors, each wrapping one taxonomy sentinel
var (
	ErrInvalidCodeFormat       = fmt.Errorf("%w: code has an invalid format", ErrValidation)
	ErrInvalidCode             = fmt.Errorf("%w: invalid code", ErrAuthentication)
	ErrInvalidRecoveryToken    = fmt.Errorf("%w: invalid or expired token", ErrAuthentication)
	ErrInvalidCurrentPassword  = fmt.Errorf("%w: current password is incorrect", ErrAuthentication)
	ErrTwoFactorAlreadyEnabled = fmt.Errorf("%w: two-factor authentication is already enabled", ErrConflict)
	ErrTwoFactorNotEnabled     = fmt.Errorf("%w: two-factor authentication is not enabled", ErrNotFound)
	ErrNoPendingSetup          = fmt.Errorf("%w: no pending two-factor setup", ErrNotFound)
	ErrCSRFInvalid             = fmt.Errorf("%w: csrf token invalid", ErrIntegrity)
	ErrSessionNotFound         = fmt.Errorf("%w: session not found", ErrNotFound)
)

// ValidationError carries every reason an input was rejected.
type ValidationError struct {
	Message string
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Reasons, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RateLimitedError reports when the rejected action may next be attempted.
type RateLimitedError struct {
	Action          string
	NextAllowedTime time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited until %s", e.Action, e.NextAllowedTime.UTC().Format(time.RFC3339))
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
