package errreport

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 250 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
)

// RetryPolicy bounds automatic retries of network failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 3 attempts, 250ms base, 5s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Backoff returns the delay before retry number attempt (0-indexed) with
// jitter. The result never exceeds MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt > 30 {
		attempt = 30
	}
	base := p.BaseDelay << uint(attempt)
	if base <= 0 || base > p.MaxDelay {
		base = p.MaxDelay
	}
	if half := int64(base) / 2; half > 0 {
		base += time.Duration(rand.Int64N(half))
	}
	if base > p.MaxDelay {
		base = p.MaxDelay
	}
	return base
}
