package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database      DatabaseConfig
	Redis         RedisConfig
	Server        ServerConfig
	Auth          AuthConfig
	CSRF          CSRFConfig
	TwoFactorGate TwoFactorGateConfig
	RateLimit     RateLimitConfig
	Email         EmailConfig
	Cookies       CookieConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	KeyPrefix   string
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	AllowedOrigins  []string
	TrustedProxies  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CleanupInterval time.Duration
}

type AuthConfig struct {
	JWTSecret         string // Identity provider access token secret
	AccessTokenExpiry time.Duration
	SessionTTL        time.Duration
	TOTPEncryptionKey []byte // 32 bytes, from hex
	TOTPIssuer        string
	BackupCodeHashKey string
	BackupCodeCount   int
	ClaimSigningKey   string
	ClaimTTL          time.Duration
	TimingBaseDelayMs int
	TimingRandomDelay int
	TimingDelayOnOK   bool
}

type CSRFConfig struct {
	TokenTTL       time.Duration
	ExemptPrefixes []string
}

type TwoFactorGateConfig struct {
	ProtectedPrefixes []string
	VerifyPath        string
}

type RateLimitConfig struct {
	PasswordResetInterval      time.Duration
	VerificationResendInterval time.Duration
	RecoveryRequestsPerMinute  int
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	AppBaseURL  string
}

type CookieConfig struct {
	Domain string
	Secure bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "portalguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			DialTimeout: getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			KeyPrefix:   getEnv("REDIS_KEY_PREFIX", "portalguard"),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:  parseAllowedOrigins(env),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES", nil),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			SessionTTL:        getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
			TOTPIssuer:        getEnv("TOTP_ISSUER", "Community Portal"),
			BackupCodeHashKey: getEnv("BACKUP_CODE_HASH_KEY", ""),
			BackupCodeCount:   getEnvAsInt("BACKUP_CODE_COUNT", 10),
			ClaimSigningKey:   getEnv("TWO_FACTOR_CLAIM_KEY", ""),
			ClaimTTL:          getEnvAsDuration("TWO_FACTOR_CLAIM_TTL", 24*time.Hour),
			TimingBaseDelayMs: getEnvAsInt("TIMING_DELAY_BASE_MS", 300),
			TimingRandomDelay: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 200),
			TimingDelayOnOK:   getEnvAsBool("TIMING_DELAY_ON_SUCCESS", true),
		},
		CSRF: CSRFConfig{
			TokenTTL: getEnvAsDuration("CSRF_TOKEN_TTL", 24*time.Hour),
			ExemptPrefixes: getEnvAsList("CSRF_EXEMPT_PREFIXES", []string{
				"/health",
				"/metrics",
				"/api/csrf-token",
				"/api/auth/callback",
				"/api/webhooks",
			}),
		},
		TwoFactorGate: TwoFactorGateConfig{
			ProtectedPrefixes: getEnvAsList("TWO_FACTOR_PROTECTED_PREFIXES", []string{
				"/settings",
				"/admin",
				"/api/admin",
				"/api/auth/sessions",
				"/api/auth/2fa/disable",
				"/api/auth/2fa/backup-codes",
				"/api/auth/password-reset/change",
			}),
			VerifyPath: getEnv("TWO_FACTOR_VERIFY_PATH", "/auth/2fa-verify"),
		},
		RateLimit: RateLimitConfig{
			PasswordResetInterval:      getEnvAsDuration("PASSWORD_RESET_INTERVAL", 15*time.Minute),
			VerificationResendInterval: getEnvAsDuration("VERIFICATION_RESEND_INTERVAL", 5*time.Minute),
			RecoveryRequestsPerMinute:  getEnvAsInt("RECOVERY_REQUESTS_PER_MINUTE", 10),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@example.com"),
			AppBaseURL:  getEnv("APP_BASE_URL", "http://localhost:3000"),
		},
		Cookies: CookieConfig{
			Domain: getEnv("COOKIE_DOMAIN", ""),
			Secure: getEnvAsBool("COOKIE_SECURE", env == "production"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSecret("JWT_SECRET", cfg.Auth.JWTSecret, env); err != nil {
		return nil, err
	}
	if err := validateSecret("TWO_FACTOR_CLAIM_KEY", cfg.Auth.ClaimSigningKey, env); err != nil {
		return nil, err
	}
	if err := validateSecret("BACKUP_CODE_HASH_KEY", cfg.Auth.BackupCodeHashKey, env); err != nil {
		return nil, err
	}

	key, err := parseEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}
	cfg.Auth.TOTPEncryptionKey = key

	if cfg.Auth.BackupCodeCount < 8 || cfg.Auth.BackupCodeCount > 10 {
		return nil, fmt.Errorf("BACKUP_CODE_COUNT must be between 8 and 10 (got %d)", cfg.Auth.BackupCodeCount)
	}

	return cfg, nil
}

// validateSecret enforces minimum security standards for signing secrets
func validateSecret(name, secret, env string) error {
	if secret == "" {
		return fmt.Errorf("%s is required", name)
	}

	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

// parseEncryptionKey decodes the hex-encoded AES-256 key
func parseEncryptionKey(value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma separated value, dropping empty entries
func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS", []string{})
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
