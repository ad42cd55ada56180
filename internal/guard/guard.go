// Package guard wraps a non-idempotent external write with bounded retries
// and success/failure alerting.
package guard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"floor-oracle/internal/alerting"
)

// AlertChannel tags guard alerts so operators can route them.
const AlertChannel = "ORACLE"

// Propagator is the interface the orchestration pass depends on.
type Propagator interface {
	Call(ctx context.Context, action func(context.Context) error, label string)
}

// Guard retries an external call up to a fixed budget with a fixed backoff
// between attempts. The expected failure mode is transient rate limiting on
// the ledger endpoint, so waiting and retrying usually succeeds.
type Guard struct {
	attempts int
	backoff  time.Duration
	notifier alerting.Notifier
	logger   zerolog.Logger

	wait func(ctx context.Context, d time.Duration) bool
}

// New constructs a Guard. A nil notifier disables alerts; outcomes are still
// logged.
func New(attempts int, backoff time.Duration, notifier alerting.Notifier, logger zerolog.Logger) *Guard {
	if attempts <= 0 {
		attempts = 3
	}
	return &Guard{
		attempts: attempts,
		backoff:  backoff,
		notifier: notifier,
		logger:   logger.With().Str("component", "guard").Logger(),
		wait:     sleep,
	}
}

// Call attempts the action until it succeeds or the retry budget is spent.
// Exactly one terminal alert is emitted per call: success on any attempt, or
// failure after exhaustion. Cancellation mid-backoff abandons the call with
// a log but no alert. The underlying error never reaches the caller; a
// propagation failure must not abort the rest of the batch.
func (g *Guard) Call(ctx context.Context, action func(context.Context) error, label string) {
	for attempt := 1; attempt <= g.attempts; attempt++ {
		err := action(ctx)
		if err == nil {
			g.logger.Info().Str("label", label).Int("attempt", attempt).Msg("propagation succeeded")
			g.alert(ctx, "Successfully updated "+label)
			return
		}

		g.logger.Warn().
			Err(err).
			Str("label", label).
			Int("attempt", attempt).
			Int("budget", g.attempts).
			Msg("propagation attempt failed")

		if attempt < g.attempts {
			if !g.wait(ctx, g.backoff) {
				// The retry budget was not exhausted; a failure alert here
				// would misreport an operator-initiated shutdown.
				g.logger.Warn().Str("label", label).Msg("propagation abandoned; context cancelled")
				return
			}
		}
	}

	g.logger.Error().Str("label", label).Msg("propagation failed after all attempts")
	g.alert(ctx, "Failed to update "+label)
}

func (g *Guard) alert(ctx context.Context, message string) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.Notify(ctx, AlertChannel, message); err != nil {
		g.logger.Error().Err(err).Msg("failed to dispatch alert")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var _ Propagator = (*Guard)(nil)
