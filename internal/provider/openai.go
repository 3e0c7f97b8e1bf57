package provider

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures an OpenAI completion backend.
type OpenAIOptions struct {
	// APIKey is the OpenAI API key. If empty, uses OPENAI_API_KEY.
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for compatible gateways.
	BaseURL string
	// Model is the chat model identifier.
	Model string
}

// OpenAIBackend completes prompts via the OpenAI chat completions API.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend creates an OpenAI backend.
func NewOpenAIBackend(o OpenAIOptions) (*OpenAIBackend, error) {
	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: no API key configured and OPENAI_API_KEY is not set")
	}

	cfg := openai.DefaultConfig(apiKey)
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}

	model := o.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIBackend{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: messages,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &Error{Kind: KindServiceUnavailable, Message: "empty completion response"}
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError maps SDK errors onto the gateway taxonomy.
func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "openai call timed out", Err: err}
	}

	var apierr *openai.APIError
	if errors.As(err, &apierr) {
		switch {
		case apierr.HTTPStatusCode == 401 || apierr.HTTPStatusCode == 403:
			return &Error{Kind: KindAuthError, Message: "openai rejected credentials", Err: err}
		case apierr.HTTPStatusCode == 429:
			return &Error{Kind: KindRateLimited, Message: "openai rate limit hit", Err: err}
		case apierr.HTTPStatusCode >= 500:
			return &Error{Kind: KindServiceUnavailable, Message: "openai service error", Err: err}
		case apierr.HTTPStatusCode >= 400:
			return &Error{Kind: KindInvalidRequest, Message: "openai rejected request", Err: err}
		}
	}
	return &Error{Kind: KindServiceUnavailable, Message: "openai call failed", Err: err}
}
