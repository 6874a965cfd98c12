package services

import (
	"context"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/BradenHooton/portalguard/pkg/logger"
)

// User-facing recovery messages. None of them reveals whether an account exists.
const (
	msgTryLater    = "We could not process your request right now. Please try again later."
	msgRateLimited = "Too many requests. Please wait before trying again."
)

// recoveryFlow is the gate-and-record skeleton shared by the recovery services
type recoveryFlow struct {
	gate *ActionGate
	sink *logger.ErrorSink
}

// run passes email through the gate for action and runs fn. Every attempt
// is recorded. A failing fn releases the window so only successes gate the
// next attempt. Returns nil when fn succeeded, otherwise the result to show.
func (f *recoveryFlow) run(
	ctx context.Context,
	action models.Action,
	interval time.Duration,
	email, ipAddress string,
	fn func(ctx context.Context) error,
) *models.ActionResult {
	decision, err := f.gate.CheckAndRecord(ctx, email, action, interval)
	if err != nil {
		f.sink.Capture(ctx, string(action), email, err)
		f.gate.RecordAttempt(ctx, email, action, ipAddress, false, "gate_unavailable")
		return &models.ActionResult{Success: false, Message: msgTryLater}
	}

	if !decision.Allowed {
		f.gate.RecordAttempt(ctx, email, action, ipAddress, false, "rate_limited")
		return &models.ActionResult{
			Success:         false,
			Message:         msgRateLimited,
			RateLimited:     true,
			NextAllowedTime: decision.NextAllowedTime,
		}
	}

	if err := fn(ctx); err != nil {
		f.sink.Capture(ctx, string(action), email, err)
		f.gate.Release(ctx, email, action)
		f.gate.RecordAttempt(ctx, email, action, ipAddress, false, "internal_error")
		return &models.ActionResult{Success: false, Message: msgTryLater}
	}

	f.gate.RecordAttempt(ctx, email, action, ipAddress, true, "")
	return nil
}
