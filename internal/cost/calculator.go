// Package cost estimates and reports LLM spend for pipeline runs.
package cost

import (
	"fmt"
	"strings"
	"sync"

	"github.com/p-gag/vineyard-cli/pkg/anthropic"
)

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model names to pricing.
type Rates map[string]ModelRate

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001": {
			Input: 0.80, Output: 4.00,
		},
		"claude-sonnet-4-5-20250929": {
			Input: 3.00, Output: 15.00,
		},
	}
}

// Calculator computes costs for Anthropic API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of one call's token usage. Unknown models cost 0.
func (c *Calculator) Claude(model string, usage anthropic.TokenUsage) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	inCost := (float64(usage.InputTokens) / 1e6) * rate.Input
	outCost := (float64(usage.OutputTokens) / 1e6) * rate.Output
	return inCost + outCost
}

// Assumed per-call token volumes for the a-priori estimate. Classification is
// a short exchange; enrichment pulls whole websites through web search.
const (
	classifyInputTokens  = 2_000
	classifyOutputTokens = 300
	enrichInputTokens    = 20_000
	enrichOutputTokens   = 2_000
)

// Estimate is the a-priori cost projection printed before a pipeline run.
type Estimate struct {
	Producers     int
	WineRatio     float64
	ClassifyModel string
	EnrichModel   string
	ClassifyCost  float64
	EnrichCost    float64
}

// Total returns the combined projected cost.
func (e Estimate) Total() float64 { return e.ClassifyCost + e.EnrichCost }

// String renders a short operator-facing summary.
func (e Estimate) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Producers to process: %d\n", e.Producers)
	fmt.Fprintf(&b, "Classification (%s): $%.2f\n", e.ClassifyModel, e.ClassifyCost)
	fmt.Fprintf(&b, "Enrichment (%s, ~%.0f%% wine ratio): $%.2f\n", e.EnrichModel, e.WineRatio*100, e.EnrichCost)
	fmt.Fprintf(&b, "Estimated total: $%.2f", e.Total())
	return b.String()
}

// EstimateRun projects the cost of processing n producers: one classification
// call each, plus one enrichment call for the expected wine subset.
func (c *Calculator) EstimateRun(n int, wineRatio float64, classifyModel, enrichModel string) Estimate {
	classifyUsage := anthropic.TokenUsage{
		InputTokens:  int64(n) * classifyInputTokens,
		OutputTokens: int64(n) * classifyOutputTokens,
	}
	wineCount := int64(float64(n) * wineRatio)
	enrichUsage := anthropic.TokenUsage{
		InputTokens:  wineCount * enrichInputTokens,
		OutputTokens: wineCount * enrichOutputTokens,
	}

	return Estimate{
		Producers:     n,
		WineRatio:     wineRatio,
		ClassifyModel: classifyModel,
		EnrichModel:   enrichModel,
		ClassifyCost:  c.Claude(classifyModel, classifyUsage),
		EnrichCost:    c.Claude(enrichModel, enrichUsage),
	}
}

// Tracker accumulates actual spend across worker goroutines.
type Tracker struct {
	calc *Calculator

	mu    sync.Mutex
	calls int
	spend float64
	usage anthropic.TokenUsage
}

// NewTracker creates a tracker using the calculator's rates.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{calc: calc}
}

// Record adds one call's usage.
func (t *Tracker) Record(model string, usage anthropic.TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.spend += t.calc.Claude(model, usage)
	t.usage.Add(usage)
}

// Report returns calls made, tokens consumed, and dollars spent so far.
func (t *Tracker) Report() (calls int, usage anthropic.TokenUsage, spend float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls, t.usage, t.spend
}
