package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sells-group/healthmetrics-cli/internal/model"
	"github.com/sells-group/healthmetrics-cli/internal/resilience"
)

// Claude extracts metrics with the Anthropic Messages API.
type Claude struct {
	opts []option.RequestOption
}

// NewClaude creates a Claude provider. Extra request options are appended
// after the per-call credentials and endpoint.
func NewClaude(opts ...option.RequestOption) *Claude {
	return &Claude{opts: opts}
}

// Name implements Provider.
func (c *Claude) Name() string { return "claude" }

// Extract implements Provider.
func (c *Claude) Extract(ctx context.Context, req model.ExtractionRequest, cfg model.ProviderConfig) (*model.RawExtractionResult, error) {
	start := time.Now()
	system, user := buildPrompt(claudeFields, req)

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.Credentials),
		option.WithBaseURL(cfg.Endpoint),
		option.WithMaxRetries(0),
	}
	client := sdk.NewClient(append(opts, c.opts...)...)

	msg, err := client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(cfg.Model),
		MaxTokens:   maxOutputTokens,
		System:      []sdk.TextBlockParam{{Text: system}},
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
		Temperature: sdk.Float(0),
	})
	if err != nil {
		return nil, classifyClaudeError(c.Name(), err)
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}

	fields, err := parseFields(c.Name(), text.String())
	if err != nil {
		return nil, err
	}

	return &model.RawExtractionResult{
		Provider: c.Name(),
		Model:    string(msg.Model),
		Fields:   fields,
		Raw:      text.String(),
		Usage: model.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
		Duration: time.Since(start),
	}, nil
}

func classifyClaudeError(provider string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		pe := resilience.FromHTTPStatus(provider, apiErr.StatusCode, apiErr.RawJSON())
		pe.Cause = err
		return pe
	}
	return resilience.FromTransport(provider, err)
}
