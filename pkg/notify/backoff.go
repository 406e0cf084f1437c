package notify

import (
	"math/rand/v2"
	"time"
)

// Backoff is the linear reconnection policy: attempt n waits Interval*n, and
// no attempt is made once MaxAttempts have been used.
type Backoff struct {
	Interval    time.Duration
	MaxAttempts int
	// Jitter adds a random delay in [0, Jitter). It is clamped below Interval
	// so delays stay strictly increasing.
	Jitter time.Duration

	rand func() float64
}

// CanRetry reports whether another attempt may be scheduled after attempts
// have already been made.
func (b Backoff) CanRetry(attempts int) bool {
	return b.MaxAttempts > 0 && attempts < b.MaxAttempts
}

// Delay returns the wait before attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Interval * time.Duration(attempt)

	jitter := b.Jitter
	if jitter >= b.Interval {
		jitter = b.Interval - 1
	}
	if jitter > 0 {
		r := b.rand
		if r == nil {
			r = rand.Float64
		}
		d += time.Duration(r() * float64(jitter))
	}
	return d
}

// Schedule lists every delay the policy will produce, in order.
func (b Backoff) Schedule() []time.Duration {
	if b.MaxAttempts <= 0 {
		return nil
	}
	out := make([]time.Duration, 0, b.MaxAttempts)
	for i := 1; i <= b.MaxAttempts; i++ {
		out = append(out, b.Delay(i))
	}
	return out
}
