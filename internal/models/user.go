package models

import (
	"time"
)

// User is an account held by the local identity provider
type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	EmailVerified     bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PasswordChangedAt *time.Time
}
