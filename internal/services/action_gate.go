package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/portalguard/internal/cache"
	"github.com/BradenHooton/portalguard/internal/metrics"
	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/BradenHooton/portalguard/pkg/logger"
)

// ActionLogRepository defines the audit log operations behind the gate
type ActionLogRepository interface {
	Record(ctx context.Context, entry *models.ActionLogEntry) error
	GetLastSuccessTime(ctx context.Context, email string, action models.Action) (*time.Time, error)
}

// ActionCounter reserves one slot per key and window atomically
type ActionCounter interface {
	Key(parts ...string) string
	Reserve(ctx context.Context, key string, window time.Duration) (cache.Reservation, error)
	Release(ctx context.Context, key string) error
	Shorten(ctx context.Context, key string, ttl time.Duration) error
}

// ActionGate enforces a minimum interval between successful sensitive
// actions for one identity.
//
// The check and the reservation are one atomic counter operation, so two
// concurrent requests can never both pass. When the counter store is
// unavailable the gate falls back to the last success in the audit log.
// A fresh window is checked against that log too, so a success recorded
// while the counter was down or after its key was lost still gates.
type ActionGate struct {
	counter ActionCounter // nil disables the primary path
	logs    ActionLogRepository
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

func NewActionGate(counter ActionCounter, logs ActionLogRepository, recorder *metrics.Recorder, logger *slog.Logger) *ActionGate {
	return &ActionGate{
		counter: counter,
		logs:    logs,
		metrics: recorder,
		logger:  logger,
		now:     time.Now,
	}
}

func normalizeIdentity(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CheckAndRecord decides whether email may perform action now. An allowed
// decision has already reserved the window; call Release if the guarded
// action then fails so the failure does not gate the next attempt.
func (g *ActionGate) CheckAndRecord(ctx context.Context, email string, action models.Action, minInterval time.Duration) (*models.GateDecision, error) {
	identity := normalizeIdentity(email)

	decision, err := g.reserve(ctx, identity, action, minInterval)
	if err != nil {
		g.logger.Warn("action counter unavailable, falling back to audit log",
			slog.String("action", string(action)),
			slog.Any("error", err))

		decision, err = g.checkLog(ctx, identity, action, minInterval)
		if err != nil {
			g.logger.Error("action gate unavailable",
				slog.String("action", string(action)),
				slog.Any("error", err))
			return nil, fmt.Errorf("%w: action gate unavailable", models.ErrTransient)
		}
	}

	g.metrics.RateGateDecision(string(action), decision.Allowed)
	return decision, nil
}

func (g *ActionGate) reserve(ctx context.Context, identity string, action models.Action, minInterval time.Duration) (*models.GateDecision, error) {
	if g.counter == nil {
		return nil, fmt.Errorf("no action counter configured")
	}

	key := g.counter.Key(string(action), identity)
	res, err := g.counter.Reserve(ctx, key, minInterval)
	if err != nil {
		return nil, err
	}
	if res.Allowed {
		return g.reconcile(ctx, key, identity, action, minInterval), nil
	}

	next := g.now().Add(res.RetryAfter)
	return &models.GateDecision{Allowed: false, NextAllowedTime: &next}, nil
}

// reconcile checks a freshly opened window against the audit log. A success
// inside the interval denies the request and trims the window to end when
// that success stops gating.
func (g *ActionGate) reconcile(ctx context.Context, key, identity string, action models.Action, minInterval time.Duration) *models.GateDecision {
	decision, err := g.checkLog(ctx, identity, action, minInterval)
	if err != nil {
		g.logger.Warn("audit log unavailable, trusting action counter",
			slog.String("action", string(action)),
			slog.Any("error", err))
		return &models.GateDecision{Allowed: true}
	}
	if decision.Allowed {
		return decision
	}

	if err := g.counter.Shorten(ctx, key, decision.NextAllowedTime.Sub(g.now())); err != nil {
		g.logger.Warn("failed to align action window with audit log",
			slog.String("action", string(action)),
			slog.Any("error", err))
	}
	return decision
}

func (g *ActionGate) checkLog(ctx context.Context, identity string, action models.Action, minInterval time.Duration) (*models.GateDecision, error) {
	last, err := g.logs.GetLastSuccessTime(ctx, identity, action)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return &models.GateDecision{Allowed: true}, nil
	}

	next := last.Add(minInterval)
	if g.now().Before(next) {
		return &models.GateDecision{Allowed: false, NextAllowedTime: &next}, nil
	}
	return &models.GateDecision{Allowed: true}, nil
}

// Release frees a window reserved by CheckAndRecord
func (g *ActionGate) Release(ctx context.Context, email string, action models.Action) {
	if g.counter == nil {
		return
	}
	key := g.counter.Key(string(action), normalizeIdentity(email))
	if err := g.counter.Release(ctx, key); err != nil {
		g.logger.Warn("failed to release action window",
			slog.String("action", string(action)),
			slog.Any("error", err))
	}
}

// RecordAttempt appends one attempt to the action's audit log. Failures are
// logged and never block the caller.
func (g *ActionGate) RecordAttempt(ctx context.Context, email string, action models.Action, ipAddress string, success bool, failureReason string) {
	entry := &models.ActionLogEntry{
		Email:     normalizeIdentity(email),
		Action:    action,
		Success:   success,
		IPAddress: ipAddress,
	}
	if failureReason != "" {
		entry.FailureReason = &failureReason
	}

	if err := g.logs.Record(ctx, entry); err != nil {
		g.logger.Warn("failed to record action attempt",
			slog.String("action", string(action)),
			slog.String("email", logger.MaskEmail(email)),
			slog.Any("error", err))
	}
}
