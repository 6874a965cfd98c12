package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

// Rule messages reported by ValidatePassword. Every failing rule is reported.
const (
	RuleTooShort  = "must be at least 8 characters"
	RuleTooLong   = "must be at most 128 characters"
	RuleNoLower   = "must contain at least one lowercase letter"
	RuleNoUpper   = "must contain at least one uppercase letter"
	RuleNoDigit   = "must contain at least one digit"
	RuleNoSymbol  = "must contain at least one special character"
	RuleTooCommon = "is too common, please choose a more unique password"
)

// PasswordValidationError lists every rule a candidate password failed.
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "password " + strings.Join(e.Errors, "; ")
}

// Common weak passwords to reject (compared lowercased)
var commonPasswords = map[string]bool{
	"password":     true,
	"password1":    true,
	"password1!":   true,
	"password123":  true,
	"password123!": true,
	"passw0rd":     true,
	"passw0rd!":    true,
	"p@ssw0rd":     true,
	"p@ssw0rd1":    true,
	"12345678":     true,
	"123456789":    true,
	"qwerty":       true,
	"qwerty123":    true,
	"qwerty123!":   true,
	"abc123":       true,
	"123456":       true,
	"admin":        true,
	"admin123!":    true,
	"letmein":      true,
	"letmein1!":    true,
	"welcome":      true,
	"welcome1!":    true,
	"welcome123!":  true,
	"monkey":       true,
	"dragon":       true,
	"master":       true,
	"123123":       true,
	"shadow":       true,
	"sunshine":     true,
	"princess":     true,
	"starwars":     true,
	"football":     true,
	"iloveyou":     true,
	"trustno1":     true,
	"changeme1!":   true,
}

// prehashPrefix marks hashes whose input was SHA-256 digested before bcrypt.
// bcrypt rejects input over 72 bytes, shorter than MaxPasswordLen allows.
const prehashPrefix = "$sha256"

func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword(prehash(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return prehashPrefix + string(hashedBytes), nil
}

// ComparePassword checks password against a hash from HashPassword. Plain
// bcrypt hashes without the prefix are still accepted.
func ComparePassword(hashedPassword, password string) error {
	if rest, ok := strings.CutPrefix(hashedPassword, prehashPrefix); ok {
		return bcrypt.CompareHashAndPassword([]byte(rest), prehash(password))
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword enforces the password strength contract.
// Length is counted in characters, not bytes.
func ValidatePassword(password string) error {
	errors := make([]string, 0)

	length := utf8.RuneCountInString(password)
	if length < MinPasswordLen {
		errors = append(errors, RuleTooShort)
	}
	if length > MaxPasswordLen {
		errors = append(errors, RuleTooLong)
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	hasSpecial := false

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasLower {
		errors = append(errors, RuleNoLower)
	}
	if !hasUpper {
		errors = append(errors, RuleNoUpper)
	}
	if !hasDigit {
		errors = append(errors, RuleNoDigit)
	}
	if !hasSpecial {
		errors = append(errors, RuleNoSymbol)
	}

	if commonPasswords[strings.ToLower(password)] {
		errors = append(errors, RuleTooCommon)
	}

	if len(errors) > 0 {
		return &PasswordValidationError{Errors: errors}
	}

	return nil
}
