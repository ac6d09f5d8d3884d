package cost

import (
	"strings"

	"github.com/sells-group/healthmetrics-cli/internal/model"
)

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps a model identifier to its pricing.
type Rates map[string]ModelRate

// Calculator computes costs for provider token usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	normalized := make(Rates, len(rates))
	for k, v := range rates {
		normalized[strings.ToLower(k)] = v
	}
	return &Calculator{rates: normalized}
}

// Rate returns the pricing for a call made with cfg. Pricing configured on
// the provider wins over the built-in table. Unknown models price at zero.
func (c *Calculator) Rate(cfg model.ProviderConfig) (ModelRate, bool) {
	if cfg.Pricing.Input > 0 || cfg.Pricing.Output > 0 {
		return ModelRate{Input: cfg.Pricing.Input, Output: cfg.Pricing.Output}, true
	}
	rate, ok := c.rates[strings.ToLower(cfg.Model)]
	return rate, ok
}

// Estimate computes the cost in USD of one call.
func (c *Calculator) Estimate(cfg model.ProviderConfig, usage model.Usage) float64 {
	rate, ok := c.Rate(cfg)
	if !ok {
		return 0
	}
	inCost := (float64(usage.InputTokens) / 1e6) * rate.Input
	outCost := (float64(usage.OutputTokens) / 1e6) * rate.Output
	return inCost + outCost
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		"gpt-4o":                     {Input: 2.50, Output: 10.00},
		"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
		"deepseek-chat":              {Input: 0.27, Output: 1.10},
		"deepseek-reasoner":          {Input: 0.55, Output: 2.19},
	}
}
