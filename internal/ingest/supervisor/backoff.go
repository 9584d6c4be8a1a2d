package supervisor

import "time"

// DefaultDelay is the wait between reconnect attempts.
const DefaultDelay = 5 * time.Second

// Backoff defines how long to wait before the next session.
type Backoff interface {
	// Delay returns the wait after the given attempt (1-indexed).
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same interval after every attempt. There is no
// growth, no jitter and no attempt limit.
type FixedBackoff struct {
	Interval time.Duration
}

// Delay returns Interval, or DefaultDelay when unset.
func (b FixedBackoff) Delay(int) time.Duration {
	if b.Interval <= 0 {
		return DefaultDelay
	}
	return b.Interval
}
