package provider

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sells-group/healthmetrics-cli/internal/model"
	"github.com/sells-group/healthmetrics-cli/internal/resilience"
)

// OpenAI extracts metrics with the Chat Completions API in JSON mode.
type OpenAI struct {
	opts []option.RequestOption
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(opts ...option.RequestOption) *OpenAI {
	return &OpenAI{opts: opts}
}

// Name implements Provider.
func (p *OpenAI) Name() string { return "openai" }

// Extract implements Provider.
func (p *OpenAI) Extract(ctx context.Context, req model.ExtractionRequest, cfg model.ProviderConfig) (*model.RawExtractionResult, error) {
	start := time.Now()
	system, user := buildPrompt(openAIFields, req)

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.Credentials),
		option.WithBaseURL(cfg.Endpoint),
		option.WithMaxRetries(0),
	}
	client := openai.NewClient(append(opts, p.opts...)...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(maxOutputTokens),
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(p.Name(), err)
	}

	if len(resp.Choices) == 0 {
		return nil, resilience.NewRetryable(p.Name(), "no choices in response", 0, nil)
	}
	content := resp.Choices[0].Message.Content

	fields, err := parseFields(p.Name(), content)
	if err != nil {
		return nil, err
	}

	return &model.RawExtractionResult{
		Provider: p.Name(),
		Model:    resp.Model,
		Fields:   fields,
		Raw:      content,
		Usage: model.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Duration: time.Since(start),
	}, nil
}

func classifyOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe := resilience.FromHTTPStatus(provider, apiErr.StatusCode, apiErr.RawJSON())
		pe.Cause = err
		return pe
	}
	return resilience.FromTransport(provider, err)
}
