// Package provider implements the multi-provider LLM call layer:
// a read-only registry of completion backends and a gateway that
// applies per-provider timeout and retry policy.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CallOptions carries per-call parameters for a completion request.
type CallOptions struct {
	// System is the optional system prompt.
	System string
	// MaxTokens caps the response length. Zero means backend default.
	MaxTokens int
}

// Backend is a single LLM completion backend. Implementations must be
// safe for concurrent use and must honor context cancellation.
type Backend interface {
	// Complete returns the model's text response for the given prompt.
	// Failures must be returned as *Error with an appropriate kind.
	Complete(ctx context.Context, prompt string, opts CallOptions) (string, error)
}

// Config describes one registered provider.
type Config struct {
	// Name is the stable provider name used for routing.
	Name string
	// Endpoint is the backend base URL, if applicable.
	Endpoint string
	// Model is the model identifier passed to the backend.
	Model string
	// Timeout is the per-call deadline.
	Timeout time.Duration
	// Retry is the retry policy for transient failures.
	Retry RetryPolicy
}

// entry pairs a provider config with its backend.
type entry struct {
	config  Config
	backend Backend
}

// Registry maps provider names to configured backends. It is populated
// at process startup and read-only afterwards, so concurrent reads
// during steady state need no coordination beyond the RWMutex.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a provider. Registering a duplicate name is an error.
func (r *Registry) Register(cfg Config, b Backend) error {
	if cfg.Name == "" {
		return fmt.Errorf("register provider: name is empty")
	}
	if b == nil {
		return fmt.Errorf("register provider %q: nil backend", cfg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[cfg.Name]; exists {
		return fmt.Errorf("register provider %q: already registered", cfg.Name)
	}
	r.entries[cfg.Name] = entry{config: cfg, backend: b}
	return nil
}

// lookup resolves a provider by name.
func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
