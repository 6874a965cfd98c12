package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/portalguard/internal/auth"
	"github.com/BradenHooton/portalguard/internal/background"
	"github.com/BradenHooton/portalguard/internal/cache"
	"github.com/BradenHooton/portalguard/internal/config"
	"github.com/BradenHooton/portalguard/internal/database"
	"github.com/BradenHooton/portalguard/internal/handlers"
	"github.com/BradenHooton/portalguard/internal/metrics"
	middlewareCustom "github.com/BradenHooton/portalguard/internal/middleware"
	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/BradenHooton/portalguard/internal/repositories"
	"github.com/BradenHooton/portalguard/internal/routes"
	"github.com/BradenHooton/portalguard/internal/services"
	pkgauth "github.com/BradenHooton/portalguard/pkg/auth"
	pkghttp "github.com/BradenHooton/portalguard/pkg/http"
	pkglogger "github.com/BradenHooton/portalguard/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx := context.Background()

	// Initialize database
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Rate windows live in Redis
	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	twoFactorRepo := repositories.NewTwoFactorRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	actionLogRepo := repositories.NewActionLogRepository(db)
	recoveryTokenRepo := repositories.NewRecoveryTokenRepository(db)

	// Initialize security primitives
	recorder := metrics.New()
	auditLogger := pkglogger.NewAuditLogger(logger)
	errorSink := pkglogger.NewErrorSink(logger)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	cookieConfig := auth.CookieConfig{
		Domain: cfg.Cookies.Domain,
		Secure: cfg.Cookies.Secure,
	}
	claimManager := auth.NewClaimManager(cfg.Auth.ClaimSigningKey, cfg.Auth.ClaimTTL, cookieConfig)
	csrfService := auth.NewCSRFService(cfg.CSRF.TokenTTL, cookieConfig)

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, []byte(cfg.Auth.BackupCodeHashKey), cfg.Auth.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize totp manager", slog.Any("error", err))
		os.Exit(1)
	}

	// Timing delay for recovery and login responses
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingBaseDelayMs,
		RandomDelayMs:  cfg.Auth.TimingRandomDelay,
		DelayOnSuccess: cfg.Auth.TimingDelayOnOK,
	})

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Email delivery falls back to the log when no SES region is configured
	var emailService services.EmailService
	if cfg.Email.AWSRegion != "" {
		sesService, err := services.NewAWSSESEmailService(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.AppBaseURL, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		emailService = sesService
	} else {
		logger.Warn("AWS_REGION not set, recovery emails will only be logged")
		emailService = services.NewLogEmailService(logger)
	}

	// Initialize services
	counter := cache.NewRedisCounter(redisClient, cfg.Redis.KeyPrefix)
	actionGate := services.NewActionGate(counter, actionLogRepo, recorder, logger)
	identityProvider := services.NewLocalIdentityProvider(userRepo, recoveryTokenRepo, logger)
	sessionService := services.NewSessionService(sessionRepo, auditLogger, logger, cfg.Auth.SessionTTL)
	twoFactorService := services.NewTwoFactorService(
		twoFactorRepo,
		totpManager,
		auditLogger,
		recorder,
		logger,
		services.TwoFactorConfig{BackupCodeCount: cfg.Auth.BackupCodeCount},
	)
	passwordResetService := services.NewPasswordResetService(
		actionGate,
		identityProvider,
		emailService,
		sessionService,
		auditLogger,
		errorSink,
		cfg.RateLimit.PasswordResetInterval,
	)
	emailVerificationService := services.NewEmailVerificationService(
		actionGate,
		identityProvider,
		emailService,
		auditLogger,
		errorSink,
		cfg.RateLimit.VerificationResendInterval,
	)

	// Initialize handlers
	h := routes.Handlers{
		Auth: handlers.NewAuthHandler(
			identityProvider,
			sessionService,
			twoFactorService,
			tokenManager,
			claimManager,
			timingDelay,
			ipConfig,
			handlers.AuthConfig{
				AccessTokenTTL: cfg.Auth.AccessTokenExpiry,
				Cookies:        cookieConfig,
				VerifyPath:     cfg.TwoFactorGate.VerifyPath,
			},
			logger,
		),
		TwoFactor: handlers.NewTwoFactorHandler(twoFactorService, claimManager, logger),
		Sessions:  handlers.NewSessionHandler(sessionService, logger),
		Recovery:  handlers.NewRecoveryHandler(passwordResetService, emailVerificationService, timingDelay, ipConfig, logger),
		CSRF:      handlers.NewCSRFHandler(csrfService, logger),
		Health: handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"database": db.HealthCheck,
			"redis": func(ctx context.Context) error {
				return cache.HealthCheck(ctx, redisClient)
			},
		}, logger),
	}

	// Seed a local account if configured
	seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := ensureSeedUser(seedCtx, userRepo, logger); err != nil {
		logger.Error("failed to ensure seed user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{
		Env:             cfg.Server.Env,
		NoStorePrefixes: []string{"/api/auth", "/api/csrf-token"},
	}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, cfg.Server.Env))
	router.Use(middlewareCustom.Metrics(recorder))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, h, routes.Security{
		Tokens:     tokenManager,
		Sessions:   sessionService,
		TwoFactor:  twoFactorService,
		Claims:     claimManager,
		CSRF:       csrfService,
		CSRFExempt: cfg.CSRF.ExemptPrefixes,
		Gate: auth.TwoFactorGateConfig{
			ProtectedPrefixes: cfg.TwoFactorGate.ProtectedPrefixes,
			VerifyPath:        cfg.TwoFactorGate.VerifyPath,
		},
		RecoveryRateLimit: middlewareCustom.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RecoveryRequestsPerMinute,
		},
		Metrics: recorder,
		Logger:  logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(sessionRepo, actionLogRepo, recoveryTokenRepo, twoFactorRepo, logger, cfg.Server.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureSeedUser creates a verified local account if SEED_USER_EMAIL and SEED_USER_PASSWORD are set
func ensureSeedUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	email := os.Getenv("SEED_USER_EMAIL")
	password := os.Getenv("SEED_USER_PASSWORD")

	if email == "" || password == "" {
		logger.Info("no SEED_USER_EMAIL or SEED_USER_PASSWORD set, skipping seed user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, email)
	if err == nil {
		logger.Info("seed user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if seed user exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return fmt.Errorf("seed user password rejected: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash seed user password: %w", err)
	}

	now := time.Now()
	user := &models.User{
		Email:             email,
		PasswordHash:      hashedPassword,
		Name:              "Seed User",
		EmailVerified:     true,
		PasswordChangedAt: &now,
	}

	if err := userRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create seed user: %w", err)
	}

	logger.Info("seed user created", slog.String("email", pkglogger.MaskEmail(email)))
	return nil
}
