package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/portalguard/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_PadsFailures(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100, RandomDelayMs: 50})
	start := time.Now()

	timing.WaitFrom(context.Background(), start, false)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestTimingDelay_SkipsSuccessUnlessConfigured(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100})
	start := time.Now()

	timing.WaitFrom(context.Background(), start, true)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	timing = auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100, DelayOnSuccess: true})
	start = time.Now()
	timing.WaitFrom(context.Background(), start, true)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestTimingDelay_AccountsForElapsedTime(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100})
	start := time.Now().Add(-150 * time.Millisecond)

	before := time.Now()
	timing.WaitFrom(context.Background(), start, false)
	assert.Less(t, time.Since(before), 50*time.Millisecond)
}

func TestTimingDelay_StopsOnContextCancel(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 5000})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	timing.WaitFrom(ctx, start, false)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTimingDelay_NilSafe(t *testing.T) {
	var timing *auth.TimingDelay
	assert.NotPanics(t, func() { timing.WaitFrom(context.Background(), time.Now(), false) })
}
