package embed

import (
	"context"
	"sync"
	"time"
)

// rateWindow is the length of one rate-limit window.
const rateWindow = time.Minute

// windowLimiter counts requests in fixed windows. When the ceiling is
// reached, Wait sleeps until the current window ends.
type windowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	start time.Time
	count int
}

// newWindowLimiter returns a limiter allowing limit requests per window.
// A limit <= 0 disables limiting.
func newWindowLimiter(limit int) *windowLimiter {
	return &windowLimiter{limit: limit, window: rateWindow, now: time.Now}
}

// Wait blocks until a request may be issued or ctx is done.
func (l *windowLimiter) Wait(ctx context.Context) error {
	if l == nil || l.limit <= 0 {
		return ctx.Err()
	}

	for {
		l.mu.Lock()
		now := l.now()
		if l.start.IsZero() || now.Sub(l.start) >= l.window {
			l.start = now
			l.count = 0
		}
		if l.count < l.limit {
			l.count++
			l.mu.Unlock()
			return nil
		}
		wait := l.start.Add(l.window).Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
