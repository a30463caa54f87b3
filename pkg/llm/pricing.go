package llm

import "math"

// CostRate holds per-million-token rates for one model, in the fractional
// cost unit used throughout (callers persisting integer cents multiply by
// 100 and round at the storage boundary).
type CostRate struct {
	Input  float64
	Output float64
}

// costRates is the static per-model rate table, keyed by exact model name.
// Read-only after init; safe for unrestricted concurrent reads.
var costRates = map[string]CostRate{
	"gpt-4o":                     {Input: 2.50, Output: 10.0},
	"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
	"gpt-4-turbo":                {Input: 10.0, Output: 30.0},
	"gpt-3.5-turbo":              {Input: 0.50, Output: 1.50},
	"o1":                         {Input: 15.0, Output: 60.0},
	"o1-mini":                    {Input: 3.0, Output: 12.0},
	"claude-opus-4-20250514":     {Input: 15.0, Output: 75.0},
	"claude-sonnet-4-20250514":   {Input: 3.0, Output: 15.0},
	"claude-3-5-sonnet-20241022": {Input: 3.0, Output: 15.0},
	"claude-3-5-haiku-20241022":  {Input: 0.80, Output: 4.0},
	"claude-3-haiku-20240307":    {Input: 0.25, Output: 1.25},
	"gemini-1.5-pro":             {Input: 1.25, Output: 5.0},
	"gemini-1.5-flash":           {Input: 0.075, Output: 0.30},
	"gemini-2.0-flash":           {Input: 0.10, Output: 0.40},
}

// defaultCostRate is the deliberately conservative fallback for models not
// in the table.
var defaultCostRate = CostRate{Input: 100, Output: 300}

// EstimateCost maps token counts to a cost using the static rate table.
// Lookup is by exact model-name string; unknown models use the default
// rate. The result is rounded to 2 decimal places.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	rate, ok := costRates[model]
	if !ok {
		rate = defaultCostRate
	}

	cost := float64(inputTokens)/1_000_000*rate.Input + float64(outputTokens)/1_000_000*rate.Output
	return math.Round(cost*100) / 100
}
