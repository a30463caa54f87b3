package llm

import "testing"

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name         string
		model        string
		inputTokens  int
		outputTokens int
		want         float64
	}{
		{"known model input only", "gpt-4o-mini", 1_000_000, 0, 0.15},
		{"known model both sides", "gpt-4o-mini", 1_000_000, 1_000_000, 0.75},
		{"unknown model default rate", "some-new-model", 1_000_000, 1_000_000, 400},
		{"zero tokens", "gpt-4o", 0, 0, 0},
		{"rounding to 2 decimals", "gpt-4o", 1234, 0, 0.0},
		{"small but visible", "o1", 100_000, 10_000, 2.10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateCost(tt.model, tt.inputTokens, tt.outputTokens)
			if got != tt.want {
				t.Errorf("EstimateCost(%q, %d, %d) = %v, want %v", tt.model, tt.inputTokens, tt.outputTokens, got, tt.want)
			}
		})
	}
}

func TestEstimateCostLookupIsExactMatch(t *testing.T) {
	exact := EstimateCost("gpt-4o", 1_000_000, 0)
	prefixed := EstimateCost("gpt-4o-2024-08-06", 1_000_000, 0)
	if exact == prefixed {
		t.Error("versioned model name should fall through to the default rate, not prefix-match")
	}
	if prefixed != 100 {
		t.Errorf("fallback input rate = %v, want 100", prefixed)
	}
}
