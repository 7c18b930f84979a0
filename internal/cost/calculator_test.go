package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/p-gag/vineyard-cli/pkg/anthropic"
)

func TestClaudeCost(t *testing.T) {
	calc := NewCalculator(Rates{
		"test-model": {Input: 1.00, Output: 10.00},
	})

	cost := calc.Claude("test-model", anthropic.TokenUsage{InputTokens: 1_000_000, OutputTokens: 100_000})
	assert.InDelta(t, 2.00, cost, 1e-9)

	assert.Zero(t, calc.Claude("unknown-model", anthropic.TokenUsage{InputTokens: 1_000_000}))
}

func TestEstimateRun(t *testing.T) {
	calc := NewCalculator(Rates{
		"cheap": {Input: 1.00, Output: 1.00},
		"deep":  {Input: 10.00, Output: 10.00},
	})

	est := calc.EstimateRun(1000, 0.3, "cheap", "deep")
	assert.Equal(t, 1000, est.Producers)

	// 1000 × (2000 in + 300 out) at $1/MTok.
	assert.InDelta(t, 2.3, est.ClassifyCost, 1e-9)
	// 300 × (20000 in + 2000 out) at $10/MTok.
	assert.InDelta(t, 66.0, est.EnrichCost, 1e-9)
	assert.InDelta(t, 68.3, est.Total(), 1e-9)

	s := est.String()
	assert.Contains(t, s, "1000")
	assert.Contains(t, s, "30% wine ratio")
}

func TestTrackerConcurrent(t *testing.T) {
	calc := NewCalculator(Rates{"m": {Input: 1.00, Output: 1.00}})
	tracker := NewTracker(calc)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Record("m", anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 500})
		}()
	}
	wg.Wait()

	calls, usage, spend := tracker.Report()
	assert.Equal(t, 50, calls)
	assert.Equal(t, int64(50_000), usage.InputTokens)
	assert.Equal(t, int64(25_000), usage.OutputTokens)
	assert.InDelta(t, 0.075, spend, 1e-9)
}
