package locker

import (
	"math"
	"time"
)

// RetryPolicy defines exponential backoff parameters shared by the
// locker HTTP client and the locker worker.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy returns the backoff used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}
}

// RetryPolicyFor builds a policy from a configured attempt count,
// keeping the default delays.
func RetryPolicyFor(maxRetries int) RetryPolicy {
	p := DefaultRetryPolicy()
	if maxRetries > 0 {
		p.MaxRetries = maxRetries
	}
	return p
}

// NextDelay returns the delay before the given attempt (1-based),
// clamped to MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	d := time.Duration(float64(initial) * math.Pow(factor, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}
