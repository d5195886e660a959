package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Readiness retries start at 200ms and double up to 5s.
const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// sleepWithContext waits d on clock so tests can drive it with a fake clock.
// It returns false if ctx ends first.
func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// nextRun returns the first instant strictly after now that lies on the
// every-aligned grid shifted by offset.
func nextRun(now time.Time, every, offset time.Duration) time.Time {
	next := now.Truncate(every).Add(offset)
	for !next.After(now) {
		next = next.Add(every)
	}
	return next
}
