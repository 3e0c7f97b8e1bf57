package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// AnthropicOptions configures an Anthropic completion backend.
type AnthropicOptions struct {
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// BaseURL overrides the API endpoint. Optional.
	BaseURL string
	// Model is the Claude model identifier.
	Model string
	// UseAWSBedrock routes calls through AWS Bedrock instead of the direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
}

// AnthropicBackend completes prompts via the Anthropic Messages API.
type AnthropicBackend struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicBackend creates an Anthropic backend for direct API or
// Bedrock use.
func NewAnthropicBackend(ctx context.Context, o AnthropicOptions) (*AnthropicBackend, error) {
	var opts []option.RequestOption

	if o.UseAWSBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if o.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(o.AWSRegion))
		}
		if o.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(o.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := o.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic: no API key configured and ANTHROPIC_API_KEY is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
		if o.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(o.BaseURL))
		}
	}

	model := anthropic.Model(o.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if o.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	return &AnthropicBackend{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock cross-region inference profile format.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	if strings.HasPrefix(string(model), "us.anthropic") {
		return model
	}
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bm, ok := bedrockModels[model]; ok {
		return anthropic.Model(bm)
	}
	return model
}

// Complete implements Backend.
func (b *AnthropicBackend) Complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	maxTokens := int64(opts.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropicError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	if text.Len() == 0 {
		return "", &Error{Kind: KindServiceUnavailable, Message: "empty completion response"}
	}
	return text.String(), nil
}

// classifyAnthropicError maps SDK errors onto the gateway taxonomy.
func classifyAnthropicError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "anthropic call timed out", Err: err}
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 401 || apierr.StatusCode == 403:
			return &Error{Kind: KindAuthError, Message: "anthropic rejected credentials", Err: err}
		case apierr.StatusCode == 429:
			return &Error{Kind: KindRateLimited, Message: "anthropic rate limit hit", Err: err}
		case apierr.StatusCode >= 500:
			return &Error{Kind: KindServiceUnavailable, Message: "anthropic service error", Err: err}
		case apierr.StatusCode >= 400:
			return &Error{Kind: KindInvalidRequest, Message: "anthropic rejected request", Err: err}
		}
	}
	return &Error{Kind: KindServiceUnavailable, Message: "anthropic call failed", Err: err}
}
