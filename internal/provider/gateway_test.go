package provider

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

// scriptedBackend returns one queued response per call, in order.
type scriptedBackend struct {
	calls     int
	responses []scriptedResponse
}

type scriptedResponse struct {
	text string
	err  error
}

func (b *scriptedBackend) Complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	if b.calls >= len(b.responses) {
		return "", &Error{Kind: KindServiceUnavailable, Message: "script exhausted"}
	}
	r := b.responses[b.calls]
	b.calls++
	return r.text, r.err
}

// newTestGateway returns a gateway whose sleeps are recorded instead of
// executed and whose jitter source is deterministic.
func newTestGateway(reg *Registry) (*Gateway, *[]time.Duration) {
	g := NewGateway(reg)
	g.rng = rand.New(rand.NewSource(1))
	slept := &[]time.Duration{}
	g.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return g, slept
}

func testConfig(name string) Config {
	return Config{
		Name:    name,
		Model:   "test-model",
		Timeout: time.Minute,
		Retry: RetryPolicy{
			MaxAttempts: 4,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
	}
}

func TestGatewayUnknownProvider(t *testing.T) {
	g, _ := newTestGateway(NewRegistry())

	_, err := g.Complete(context.Background(), "nope", "hi", CallOptions{})
	if !IsKind(err, KindUnknownProvider) {
		t.Fatalf("expected KindUnknownProvider, got %v", err)
	}
}

func TestGatewayRetriesTransientThenSucceeds(t *testing.T) {
	backend := &scriptedBackend{responses: []scriptedResponse{
		{err: &Error{Kind: KindRateLimited}},
		{err: &Error{Kind: KindServiceUnavailable}},
		{text: "ok"},
	}}
	reg := NewRegistry()
	if err := reg.Register(testConfig("mock"), backend); err != nil {
		t.Fatalf("register: %v", err)
	}
	g, slept := newTestGateway(reg)

	text, err := g.Complete(context.Background(), "mock", "hi", CallOptions{})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q, want %q", text, "ok")
	}
	if backend.calls != 3 {
		t.Errorf("backend calls = %d, want 3", backend.calls)
	}

	// Exactly 2 retries observed, each delay >= the previous.
	if len(*slept) != 2 {
		t.Fatalf("observed %d sleeps, want 2", len(*slept))
	}
	if (*slept)[1] < (*slept)[0] {
		t.Errorf("backoff not monotonic: %s then %s", (*slept)[0], (*slept)[1])
	}
	// Deterministic component is 1s then 2s; jitter adds < delay/2.
	if (*slept)[0] < time.Second || (*slept)[0] >= 1500*time.Millisecond {
		t.Errorf("first delay %s outside [1s, 1.5s)", (*slept)[0])
	}
	if (*slept)[1] < 2*time.Second || (*slept)[1] >= 3*time.Second {
		t.Errorf("second delay %s outside [2s, 3s)", (*slept)[1])
	}
}

func TestGatewayExhaustsRetries(t *testing.T) {
	backend := &scriptedBackend{responses: []scriptedResponse{
		{err: &Error{Kind: KindTimeout}},
		{err: &Error{Kind: KindTimeout}},
		{err: &Error{Kind: KindTimeout}},
		{err: &Error{Kind: KindTimeout}},
	}}
	reg := NewRegistry()
	if err := reg.Register(testConfig("mock"), backend); err != nil {
		t.Fatalf("register: %v", err)
	}
	g, slept := newTestGateway(reg)

	_, err := g.Complete(context.Background(), "mock", "hi", CallOptions{})
	if !IsKind(err, KindExhausted) {
		t.Fatalf("expected KindExhausted, got %v", err)
	}
	if backend.calls != 4 {
		t.Errorf("backend calls = %d, want MaxAttempts=4", backend.calls)
	}
	// No sleep after the final attempt.
	if len(*slept) != 3 {
		t.Errorf("observed %d sleeps, want 3", len(*slept))
	}

	// The last underlying error is carried.
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatal("error is not a *Error")
	}
	var inner *Error
	if !errors.As(pe.Err, &inner) || inner.Kind != KindTimeout {
		t.Errorf("exhausted error should wrap the last transient failure, got %v", pe.Err)
	}
}

func TestGatewayPermanentErrorNotRetried(t *testing.T) {
	for _, kind := range []ErrorKind{KindAuthError, KindInvalidRequest} {
		backend := &scriptedBackend{responses: []scriptedResponse{
			{err: &Error{Kind: kind}},
			{text: "should never be reached"},
		}}
		reg := NewRegistry()
		if err := reg.Register(testConfig("mock"), backend); err != nil {
			t.Fatalf("register: %v", err)
		}
		g, slept := newTestGateway(reg)

		_, err := g.Complete(context.Background(), "mock", "hi", CallOptions{})
		if !IsKind(err, kind) {
			t.Fatalf("expected %s to propagate, got %v", kind, err)
		}
		if backend.calls != 1 {
			t.Errorf("%s: backend calls = %d, want 1 (no retry)", kind, backend.calls)
		}
		if len(*slept) != 0 {
			t.Errorf("%s: unexpected sleeps %v", kind, *slept)
		}
	}
}

// cancelingBackend fails transiently and cancels the caller's context,
// like a client disconnecting while the provider is flapping.
type cancelingBackend struct {
	cancel context.CancelFunc
	calls  int
}

func (b *cancelingBackend) Complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	b.calls++
	b.cancel()
	return "", &Error{Kind: KindServiceUnavailable, Message: "connection reset"}
}

func TestGatewayCanceledCallerIsNotExhausted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend := &cancelingBackend{cancel: cancel}
	reg := NewRegistry()
	if err := reg.Register(testConfig("mock"), backend); err != nil {
		t.Fatalf("register: %v", err)
	}
	g, slept := newTestGateway(reg)

	_, err := g.Complete(ctx, "mock", "hi", CallOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsKind(err, KindExhausted) {
		t.Error("cancellation must not be reported as exhaustion")
	}
	if backend.calls != 1 {
		t.Errorf("backend calls = %d, want 1 (no retries after cancel)", backend.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("unexpected sleeps %v", *slept)
	}
}

func TestGatewayCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend := &scriptedBackend{responses: []scriptedResponse{
		{err: &Error{Kind: KindRateLimited}},
		{text: "should never be reached"},
	}}
	reg := NewRegistry()
	if err := reg.Register(testConfig("mock"), backend); err != nil {
		t.Fatalf("register: %v", err)
	}
	g, _ := newTestGateway(reg)
	g.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := g.Complete(ctx, "mock", "hi", CallOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsKind(err, KindExhausted) {
		t.Error("cancellation must not be reported as exhaustion")
	}
	if backend.calls != 1 {
		t.Errorf("backend calls = %d, want 1", backend.calls)
	}
}

func TestGatewayClassifiesDeadlineAsTimeout(t *testing.T) {
	backend := &scriptedBackend{responses: []scriptedResponse{
		{err: context.DeadlineExceeded},
		{text: "ok"},
	}}
	reg := NewRegistry()
	if err := reg.Register(testConfig("mock"), backend); err != nil {
		t.Fatalf("register: %v", err)
	}
	g, _ := newTestGateway(reg)

	// Deadline expiry is transient: the call is retried and succeeds.
	text, err := g.Complete(context.Background(), "mock", "hi", CallOptions{})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q, want %q", text, "ok")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	b := &scriptedBackend{}

	if err := reg.Register(testConfig("claude"), b); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := reg.Register(testConfig("claude"), b); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}

	if err := reg.Register(testConfig("gpt"), b); err != nil {
		t.Fatalf("register second provider: %v", err)
	}
	names := reg.Names()
	if len(names) != 2 || names[0] != "claude" || names[1] != "gpt" {
		t.Errorf("Names() = %v, want [claude gpt]", names)
	}
}
