package model

import (
	"time"

	"github.com/google/uuid"
)

// ProviderConfig holds the resolved settings for one extraction provider.
// It is a value type; callers receive copies and cannot mutate the resolver's state.
type ProviderConfig struct {
	Name              string
	Credentials       string
	Endpoint          string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	Priority          int
	RequestsPerSecond float64
	Pricing           Pricing
}

// Pricing holds token pricing in USD per million tokens.
type Pricing struct {
	Input  float64 `mapstructure:"input" validate:"gte=0"`
	Output float64 `mapstructure:"output" validate:"gte=0"`
}

// Attempts returns the maximum number of invocations allowed against the provider.
func (c ProviderConfig) Attempts() int {
	return 1 + c.MaxRetries
}

// ExtractionRequest is the input to a single extraction call.
type ExtractionRequest struct {
	ID     string
	Input  string
	Source string   // originating document, for logs only
	Hints  []string // canonical metric names the caller expects, optional
}

// NewExtractionRequest creates a request with a fresh ID.
func NewExtractionRequest(input string, hints ...string) ExtractionRequest {
	return ExtractionRequest{
		ID:    uuid.NewString(),
		Input: input,
		Hints: hints,
	}
}

// Usage tracks token consumption for one provider call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// RawExtractionResult is the provider-specific output of one successful call.
// Field names in Fields follow the provider's own dialect.
type RawExtractionResult struct {
	Provider string
	Model    string
	Fields   map[string]any
	Raw      string
	Usage    Usage
	Duration time.Duration
}
