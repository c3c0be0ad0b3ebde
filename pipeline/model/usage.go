package model

import (
	"fmt"
	"sync"
	"time"
)

// ModelPricing defines input and output token costs for a model, in
// USD per million tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Static pricing for the providers this module ships adapters for.
// Prices are in USD per 1M tokens and change over time; override with
// SetPricing when they drift.
var defaultPricing = map[string]ModelPricing{
	// Anthropic
	"claude-sonnet-4-20250514":   {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},

	// OpenAI
	"gpt-4o":        {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":   {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":   {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-3.5-turbo": {InputPer1M: 0.50, OutputPer1M: 1.50},

	// Google
	"gemini-1.5-pro":   {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-2.0-flash": {InputPer1M: 0.10, OutputPer1M: 0.40},
}

// Call records a single model invocation with its token usage and
// estimated cost.
type Call struct {
	Model        string    `json:"model"`
	StepID       string    `json:"step_id,omitempty"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	At           time.Time `json:"at"`
}

// UsageTracker accumulates token usage and estimated cost across model
// calls. Models missing from the pricing table are still counted, at
// zero cost. Safe for concurrent use.
type UsageTracker struct {
	mu           sync.RWMutex
	pricing      map[string]ModelPricing
	calls        []Call
	totalCost    float64
	costByModel  map[string]float64
	inputTokens  int64
	outputTokens int64
}

// NewUsageTracker returns a tracker loaded with the default pricing
// table.
func NewUsageTracker() *UsageTracker {
	pricing := make(map[string]ModelPricing, len(defaultPricing))
	for name, p := range defaultPricing {
		pricing[name] = p
	}
	return &UsageTracker{
		pricing:     pricing,
		costByModel: make(map[string]float64),
	}
}

// Record registers one model call. stepID attributes the call to a
// pipeline step and may be empty.
func (t *UsageTracker) Record(model, stepID string, usage Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pricing := t.pricing[model]
	cost := float64(usage.InputTokens)/1_000_000.0*pricing.InputPer1M +
		float64(usage.OutputTokens)/1_000_000.0*pricing.OutputPer1M

	t.calls = append(t.calls, Call{
		Model:        model,
		StepID:       stepID,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		At:           time.Now(),
	})
	t.totalCost += cost
	t.costByModel[model] += cost
	t.inputTokens += usage.InputTokens
	t.outputTokens += usage.OutputTokens
}

// TotalCost returns the cumulative estimated cost in USD.
func (t *UsageTracker) TotalCost() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalCost
}

// CostByModel returns the estimated cost attributed to each model.
func (t *UsageTracker) CostByModel() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	costs := make(map[string]float64, len(t.costByModel))
	for model, cost := range t.costByModel {
		costs[model] = cost
	}
	return costs
}

// Tokens returns total input and output token counts across all calls.
func (t *UsageTracker) Tokens() (inputTokens, outputTokens int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inputTokens, t.outputTokens
}

// Calls returns all recorded calls in chronological order.
func (t *UsageTracker) Calls() []Call {
	t.mu.RLock()
	defer t.mu.RUnlock()

	calls := make([]Call, len(t.calls))
	copy(calls, t.calls)
	return calls
}

// SetPricing overrides the price for one model, in USD per 1M tokens.
func (t *UsageTracker) SetPricing(model string, inputPer1M, outputPer1M float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// Reset clears recorded calls and totals, preserving pricing.
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = nil
	t.totalCost = 0
	t.costByModel = make(map[string]float64)
	t.inputTokens = 0
	t.outputTokens = 0
}

// String returns a one-line summary suitable for end-of-run output.
func (t *UsageTracker) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return fmt.Sprintf("%d calls, %d in / %d out tokens, est. $%.4f",
		len(t.calls), t.inputTokens, t.outputTokens, t.totalCost)
}
