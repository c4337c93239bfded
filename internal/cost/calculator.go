// Package cost estimates the USD cost of model calls from token usage.
package cost

import (
	"github.com/sells-group/greenscore/internal/model"
)

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model IDs to pricing.
type Rates map[string]ModelRate

// Calculator computes costs for model usage. Read-only after construction.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator from DefaultRates with overrides
// applied on top.
func NewCalculator(overrides Rates) *Calculator {
	rates := DefaultRates()
	for m, r := range overrides {
		rates[m] = r
	}
	return &Calculator{rates: rates}
}

// Estimate returns the cost of usage on the given model. Unknown models cost 0.
func (c *Calculator) Estimate(modelID string, usage model.TokenUsage) float64 {
	rate, ok := c.rates[modelID]
	if !ok {
		return 0
	}
	in := (float64(usage.InputTokens) / 1e6) * rate.Input
	out := (float64(usage.OutputTokens) / 1e6) * rate.Output
	return in + out
}

// Known reports whether the calculator has pricing for modelID.
func (c *Calculator) Known(modelID string) bool {
	_, ok := c.rates[modelID]
	return ok
}

// DefaultRates returns list prices for the default model of each provider.
func DefaultRates() Rates {
	return Rates{
		"meta-llama/llama-4-scout-17b-16e-instruct": {Input: 0.11, Output: 0.34},
		"llama-3.3-70b-versatile":                   {Input: 0.59, Output: 0.79},
		"gpt-4o-mini":                               {Input: 0.15, Output: 0.60},
		"gpt-4.1-mini":                              {Input: 0.40, Output: 1.60},
		"claude-haiku-4-5-20251001":                 {Input: 1.00, Output: 5.00},
		"claude-sonnet-4-5-20250929":                {Input: 3.00, Output: 15.00},
		"gemini-2.5-flash":                          {Input: 0.30, Output: 2.50},
	}
}
