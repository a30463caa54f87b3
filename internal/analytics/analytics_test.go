package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnqh/shapeshyft-api/internal/store"
	"github.com/johnqh/shapeshyft-api/pkg/llm"
)

type fakeAnalyticsStore struct {
	mu     sync.Mutex
	events []*store.AnalyticsEvent
	err    error
}

func (f *fakeAnalyticsStore) CreateEvent(_ context.Context, e *store.AnalyticsEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAnalyticsStore) ListEvents(context.Context, uuid.UUID, int) ([]*store.AnalyticsEvent, error) {
	return nil, nil
}

func TestRecordSuccess(t *testing.T) {
	fake := &fakeAnalyticsStore{}
	r := NewRecorder(fake)

	endpointID := uuid.New()
	r.Record(Attempt{
		EndpointID: endpointID,
		Provider:   llm.ProviderOpenAI,
		Model:      "gpt-4o-mini",
		Usage:      llm.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000, TotalTokens: 2_000_000},
		LatencyMs:  321,
	})

	require.Len(t, fake.events, 1)
	ev := fake.events[0]
	assert.Equal(t, endpointID, ev.EndpointID)
	assert.True(t, ev.Success)
	assert.Empty(t, ev.ErrorMessage)
	assert.Equal(t, 1_000_000, ev.TokensInput)
	assert.Equal(t, 1_000_000, ev.TokensOutput)
	assert.Equal(t, int64(321), ev.LatencyMs)
	assert.Equal(t, int64(75), ev.EstimatedCostCents) // 0.15 + 0.60, in cents
}

func TestRecordFailure(t *testing.T) {
	fake := &fakeAnalyticsStore{}
	r := NewRecorder(fake)

	r.Record(Attempt{
		EndpointID: uuid.New(),
		Provider:   llm.ProviderAnthropic,
		Model:      "claude-3-5-haiku-20241022",
		Err:        errors.New("provider timed out"),
	})

	require.Len(t, fake.events, 1)
	ev := fake.events[0]
	assert.False(t, ev.Success)
	assert.Equal(t, "provider timed out", ev.ErrorMessage)
	assert.Zero(t, ev.TokensInput)
}

func TestRecordSwallowsStoreErrors(t *testing.T) {
	fake := &fakeAnalyticsStore{err: errors.New("db down")}
	r := NewRecorder(fake)

	// Must not panic or propagate.
	r.Record(Attempt{EndpointID: uuid.New(), Provider: llm.ProviderGemini})
	assert.Empty(t, fake.events)
}

func TestCostCents(t *testing.T) {
	cents := CostCents("unknown-model", llm.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	assert.Equal(t, int64(40000), cents) // default rate 100 + 300
}
