package models

import (
	"time"
)

// Action names a rate-limited sensitive action
type Action string

const (
	ActionPasswordReset     Action = "password_reset"
	ActionEmailVerification Action = "email_verification"
)

// Minimum intervals between successful actions for one identity
const (
	PasswordResetInterval     = 15 * time.Minute
	EmailVerificationInterval = 5 * time.Minute
)

// ActionLogEntry is one audited attempt of a rate-limited action
type ActionLogEntry struct {
	ID            string
	Email         string
	Action        Action
	Success       bool
	FailureReason *string
	IPAddress     string
	CreatedAt     time.Time
}

// GateDecision is the outcome of a rate gate check
type GateDecision struct {
	Allowed         bool
	NextAllowedTime *time.Time
}

// ActionResult is the structured outcome of a credential recovery operation
type ActionResult struct {
	Success         bool       `json:"success"`
	Message         string     `json:"message"`
	RateLimited     bool       `json:"rateLimited,omitempty"`
	NextAllowedTime *time.Time `json:"nextAllowedTime,omitempty"`
	Errors          []string   `json:"errors,omitempty"`
}
