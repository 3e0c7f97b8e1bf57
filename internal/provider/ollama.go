package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaOptions configures a local Ollama completion backend.
type OllamaOptions struct {
	// ServerURL is the Ollama server address, e.g. "http://localhost:11434".
	ServerURL string
	// Model is the local model name, e.g. "llama3".
	Model string
}

// OllamaBackend completes prompts against a local Ollama server.
type OllamaBackend struct {
	llm *ollama.LLM
}

// NewOllamaBackend creates an Ollama backend.
func NewOllamaBackend(o OllamaOptions) (*OllamaBackend, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}

	opts := []ollama.Option{ollama.WithModel(o.Model)}
	if o.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(o.ServerURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama: create client: %w", err)
	}
	return &OllamaBackend{llm: llm}, nil
}

// Complete implements Backend. Ollama has no separate system-message
// channel in the single-prompt path, so the system prompt is prepended.
func (b *OllamaBackend) Complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	full := prompt
	if opts.System != "" {
		full = opts.System + "\n\n" + prompt
	}

	var callOpts []llms.CallOption
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, b.llm, full, callOpts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &Error{Kind: KindTimeout, Message: "ollama call timed out", Err: err}
		}
		return "", &Error{Kind: KindServiceUnavailable, Message: "ollama call failed", Err: err}
	}
	if out == "" {
		return "", &Error{Kind: KindServiceUnavailable, Message: "empty completion response"}
	}
	return out, nil
}
