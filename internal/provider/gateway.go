package provider

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"
)

// Gateway routes completion calls to registered providers, applying
// the provider's timeout and retrying transient failures with
// exponential backoff. It holds no session state and is safe for
// concurrent use by many sessions.
type Gateway struct {
	registry *Registry

	// sleep and rng are injection points for tests.
	sleep func(ctx context.Context, d time.Duration) error
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewGateway creates a Gateway over the given registry.
func NewGateway(registry *Registry) *Gateway {
	return &Gateway{
		registry: registry,
		sleep:    sleepCtx,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Complete resolves the named provider and executes the completion
// call under its timeout and retry policy. Transient failures
// (timeout, rate limit, service unavailable) are retried with
// delay = min(MaxDelay, BaseDelay * Multiplier^(attempt-1)) plus a
// uniform jitter in [0, delay/2). Permanent failures propagate
// immediately. After exhausting attempts the last failure is wrapped
// in an Error of kind KindExhausted. Caller cancellation is returned
// as the context error, never as exhaustion: giving up is not the same
// as the provider failing MaxAttempts times.
func (g *Gateway) Complete(ctx context.Context, providerName, prompt string, opts CallOptions) (string, error) {
	e, ok := g.registry.lookup(providerName)
	if !ok {
		return "", &Error{
			Provider: providerName,
			Kind:     KindUnknownProvider,
			Message:  "no such provider registered",
		}
	}

	policy := e.config.Retry.normalized()
	var lastErr *Error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		text, err := g.call(ctx, e, prompt, opts)
		if err == nil {
			return text, nil
		}

		perr := g.classify(providerName, err)
		if !perr.Transient() {
			return "", perr
		}
		lastErr = perr

		// The caller gave up entirely; do not burn remaining attempts
		// and do not report this as exhaustion.
		if cerr := ctx.Err(); cerr != nil && !errors.Is(cerr, context.DeadlineExceeded) {
			return "", cerr
		}

		if attempt < policy.MaxAttempts {
			delay := policy.Delay(attempt) + g.jitter(policy.Delay(attempt))
			log.Printf("[provider] %s attempt %d/%d failed (%s), retrying in %s",
				providerName, attempt, policy.MaxAttempts, perr.Kind, delay)
			if err := g.sleep(ctx, delay); err != nil {
				return "", err
			}
		}
	}

	return "", &Error{
		Provider: providerName,
		Kind:     KindExhausted,
		Message:  "retries exhausted",
		Err:      lastErr,
	}
}

// call executes a single attempt under the provider's timeout.
func (g *Gateway) call(ctx context.Context, e entry, prompt string, opts CallOptions) (string, error) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}
	return e.backend.Complete(ctx, prompt, opts)
}

// classify normalizes an arbitrary backend error into a *Error.
// Deadline expiry is classified as a transient timeout regardless of
// whether the deadline came from the provider config or the caller.
func (g *Gateway) classify(providerName string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		if perr.Provider == "" {
			perr.Provider = providerName
		}
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Provider: providerName, Kind: KindTimeout, Message: "call deadline exceeded", Err: err}
	}
	return &Error{Provider: providerName, Kind: KindServiceUnavailable, Message: "backend call failed", Err: err}
}

// jitter returns the random jitter component for a delay.
func (g *Gateway) jitter(d time.Duration) time.Duration {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return jitter(g.rng, d)
}
