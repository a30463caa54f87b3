// Package analytics records one event per LLM attempt. Events are written
// with a detached context so a caller that disconnects mid-request cannot
// cancel the write.
package analytics

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/johnqh/shapeshyft-api/internal/logger"
	"github.com/johnqh/shapeshyft-api/internal/store"
	"github.com/johnqh/shapeshyft-api/pkg/llm"
)

const writeTimeout = 5 * time.Second

// Recorder persists execution events through the analytics store.
type Recorder struct {
	store store.AnalyticsStore
}

// NewRecorder creates a recorder on the given store.
func NewRecorder(s store.AnalyticsStore) *Recorder {
	return &Recorder{store: s}
}

// Attempt describes one provider call, successful or failed.
type Attempt struct {
	EndpointID uuid.UUID
	Provider   llm.ProviderID
	Model      string
	Usage      llm.Usage
	LatencyMs  int64
	Err        error
}

// Record writes the attempt. A failed write is logged but never surfaced:
// analytics must not fail an execution that already succeeded.
func (r *Recorder) Record(a Attempt) {
	event := &store.AnalyticsEvent{
		EndpointID:         a.EndpointID,
		Provider:           a.Provider,
		Model:              a.Model,
		Success:            a.Err == nil,
		TokensInput:        a.Usage.PromptTokens,
		TokensOutput:       a.Usage.CompletionTokens,
		LatencyMs:          a.LatencyMs,
		EstimatedCostCents: CostCents(a.Model, a.Usage),
	}
	if a.Err != nil {
		event.ErrorMessage = a.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.CreateEvent(ctx, event); err != nil {
		logger.Error("failed to record analytics event",
			"endpoint_id", a.EndpointID,
			"provider", a.Provider,
			"error", err)
	}
}

// CostCents converts the estimated call cost to integer cents.
func CostCents(model string, usage llm.Usage) int64 {
	cost := llm.EstimateCost(model, usage.PromptTokens, usage.CompletionTokens)
	return int64(math.Round(cost * 100))
}
