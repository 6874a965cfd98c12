package models

import "time"

// CSRFTokenPair is an ephemeral double-submit token pair.
// Token goes to the client; Hash and Secret live in httpOnly cookies.
type CSRFTokenPair struct {
	Token    string
	Secret   string
	Hash     string // hex(SHA256(token || secret))
	IssuedAt time.Time
}
