package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sells-group/healthmetrics-cli/internal/model"
	"github.com/sells-group/healthmetrics-cli/internal/resilience"
)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// defaultMaxResponseBytes caps how much of a response body is read.
const defaultMaxResponseBytes = 8 << 20

// DeepSeekOption configures the DeepSeek provider.
type DeepSeekOption func(*DeepSeek)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) DeepSeekOption {
	return func(d *DeepSeek) {
		d.http = hc
	}
}

// WithMaxResponseBytes overrides the response body cap.
func WithMaxResponseBytes(n int64) DeepSeekOption {
	return func(d *DeepSeek) {
		if n > 0 {
			d.maxBody = n
		}
	}
}

// DeepSeek extracts metrics through DeepSeek's OpenAI-compatible
// /chat/completions endpoint.
type DeepSeek struct {
	http    *http.Client
	maxBody int64
}

// NewDeepSeek creates a DeepSeek provider. The per-call timeout comes from
// the context, so the default client sets none.
func NewDeepSeek(opts ...DeepSeekOption) *DeepSeek {
	d := &DeepSeek{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxBody: defaultMaxResponseBytes,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Name implements Provider.
func (d *DeepSeek) Name() string { return "deepseek" }

// Extract implements Provider.
func (d *DeepSeek) Extract(ctx context.Context, req model.ExtractionRequest, cfg model.ProviderConfig) (*model.RawExtractionResult, error) {
	start := time.Now()
	system, user := buildPrompt(deepSeekFields, req)

	body, err := json.Marshal(chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:      maxOutputTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, resilience.NewPermanent(d.Name(), "marshal request: "+err.Error(), 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, resilience.NewPermanent(d.Name(), "create request: "+err.Error(), 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.Credentials)

	resp, err := d.http.Do(httpReq)
	if err != nil {
		return nil, resilience.FromTransport(d.Name(), err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBody+1))
	if err != nil {
		return nil, resilience.FromTransport(d.Name(), err)
	}
	if int64(len(respBody)) > d.maxBody {
		return nil, resilience.NewRetryable(d.Name(), fmt.Sprintf("response exceeds %d bytes", d.maxBody), resp.StatusCode, nil)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.FromHTTPStatus(d.Name(), resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		// A truncated body from a flaky gateway is worth another attempt.
		return nil, resilience.FromError(d.Name(), err)
	}
	if len(out.Choices) == 0 {
		return nil, resilience.NewRetryable(d.Name(), "no choices in response", 0, nil)
	}
	content := out.Choices[0].Message.Content

	fields, err := parseFields(d.Name(), content)
	if err != nil {
		return nil, err
	}

	return &model.RawExtractionResult{
		Provider: d.Name(),
		Model:    out.Model,
		Fields:   fields,
		Raw:      content,
		Usage: model.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		},
		Duration: time.Since(start),
	}, nil
}
