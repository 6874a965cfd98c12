package models

import (
	"time"
)

// Session is an active login session tracked by the session registry
type Session struct {
	ID           string
	UserID       string
	DeviceInfo   string
	IPAddress    string
	LastActivity time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// IsExpired reports whether the session has passed its expiry at time now
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Principal is the authenticated caller of a request
type Principal struct {
	UserID    string
	Email     string
	SessionID string
}
