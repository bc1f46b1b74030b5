// internal/timex/timex.go
package timex

import (
	"context"
	"time"
)

// Sleep blocks for d or until ctx is cancelled.
// It reports false on cancellation.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Scaled divides d by factor. factor <= 0 leaves d unchanged.
func Scaled(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	return time.Duration(float64(d) / factor)
}

// SleepCorrected sleeps the remainder of a tick period, compensating for the
// time the tick body already consumed. The remainder is floored at 1ms so a
// slow tick never turns the loop into a busy spin, then scaled by the
// simulation speed factor. Reports false when ctx is cancelled mid-sleep.
func SleepCorrected(ctx context.Context, period, elapsed time.Duration, factor float64) bool {
	d := period - elapsed
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return Sleep(ctx, Scaled(d, factor))
}
