package provider

import (
	"math/rand"
	"time"
)

// RetryPolicy controls retry behavior for transient provider failures.
// It is an explicit policy object rather than middleware so backoff
// behavior can be unit-tested in isolation from network I/O.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff factor.
	Multiplier float64
}

// DefaultRetryPolicy returns the policy applied when a provider does
// not configure its own.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// normalized returns a copy with zero values replaced by defaults.
func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Delay returns the deterministic backoff delay before retrying after
// the given 1-indexed attempt: min(MaxDelay, BaseDelay * Multiplier^(attempt-1)).
// Jitter is applied separately by the gateway.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// jitter returns a uniform random duration in [0, d/2). Adding it to
// the deterministic delay spreads concurrent retries without breaking
// the monotonic growth of the deterministic component.
func jitter(rng *rand.Rand, d time.Duration) time.Duration {
	if d <= 1 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(d) / 2))
}
