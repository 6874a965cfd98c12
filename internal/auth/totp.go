package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	TOTPPeriod       = 30 // seconds per time step
	TOTPSkew         = 1  // accepted steps either side of now
	TOTPDigits       = 6
	BackupCodeLength = 8

	// Excludes 0/O and 1/I/L
	backupCodeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

var totpOpts = totp.ValidateOpts{
	Period:    TOTPPeriod,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GeneratedSecret is a fresh TOTP secret ready for storage and display
type GeneratedSecret struct {
	Secret          string // base32, shown once for manual entry
	ProvisioningURI string
	QRCodeImage     string // PNG data URL
	Encrypted       []byte
	Nonce           []byte
}

// TOTPManager handles TOTP secrets, code matching and backup codes
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	hashKey       []byte // HMAC key for backup code hashes
	issuer        string
}

// NewTOTPManager creates a new TOTP manager.
// encryptionKey must be exactly 32 bytes for AES-256.
func NewTOTPManager(encryptionKey, backupCodeHashKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}
	if len(backupCodeHashKey) == 0 {
		return nil, errors.New("backup code hash key is required")
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		hashKey:       backupCodeHashKey,
		issuer:        issuer,
	}, nil
}

// GenerateSecret creates a new secret for accountName, encrypts it and
// renders its provisioning URI as a QR code
func (tm *TOTPManager) GenerateSecret(accountName string) (*GeneratedSecret, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  20,
		Period:      TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, nonce, err := tm.Encrypt([]byte(key.Secret()))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &GeneratedSecret{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodeImage:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Encrypted:       encrypted,
		Nonce:           nonce,
	}, nil
}

// Encrypt seals plaintext with AES-256-GCM under a random nonce
func (tm *TOTPManager) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens a value sealed by Encrypt
func (tm *TOTPManager) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func (tm *TOTPManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// MatchStep checks code against secret within ±TOTPSkew steps of at and
// returns the matching time step. Callers use the step for replay checks.
func (tm *TOTPManager) MatchStep(secret, code string, at time.Time) (int64, bool) {
	if !IsTOTPFormat(code) {
		return 0, false
	}

	current := at.Unix() / TOTPPeriod
	for offset := int64(-TOTPSkew); offset <= TOTPSkew; offset++ {
		step := current + offset
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*TOTPPeriod, 0), totpOpts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return step, true
		}
	}

	return 0, false
}

// GenerateCode returns the code for secret at time at
func (tm *TOTPManager) GenerateCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totpOpts)
}

// GenerateBackupCodes generates count random backup codes of
// BackupCodeLength characters drawn uniformly from the backup code charset
func (tm *TOTPManager) GenerateBackupCodes(count int) ([]string, error) {
	max := big.NewInt(int64(len(backupCodeCharset)))

	codes := make([]string, 0, count)
	seen := make(map[string]bool, count)
	for len(codes) < count {
		code := make([]byte, BackupCodeLength)
		for j := range code {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, fmt.Errorf("failed to generate random index: %w", err)
			}
			code[j] = backupCodeCharset[n.Int64()]
		}
		if seen[string(code)] {
			continue
		}
		seen[string(code)] = true
		codes = append(codes, string(code))
	}

	return codes, nil
}

// HashBackupCode returns the keyed HMAC-SHA256 of a normalized backup code.
// The hash is deterministic so a code can be consumed with one conditional update.
func (tm *TOTPManager) HashBackupCode(code string) string {
	mac := hmac.New(sha256.New, tm.hashKey)
	mac.Write([]byte(NormalizeBackupCode(code)))
	return hex.EncodeToString(mac.Sum(nil))
}

// IsTOTPFormat reports whether code is exactly six ASCII digits
func IsTOTPFormat(code string) bool {
	if len(code) != TOTPDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeBackupCode uppercases a code and strips spaces and dashes
func NormalizeBackupCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.NewReplacer("-", "", " ", "").Replace(code)
	return strings.ToUpper(code)
}

// IsBackupCodeFormat reports whether the normalized code is eight
// uppercase alphanumeric characters
func IsBackupCodeFormat(code string) bool {
	code = NormalizeBackupCode(code)
	if len(code) != BackupCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
