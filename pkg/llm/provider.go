// Package llm provides a unified interface over LLM providers with
// schema-constrained structured output.
//
// Every provider is normalized to the same contract: build a provider-native
// request payload from a canonical Request, and execute that request into a
// canonical Response whose Content conforms to the request's output schema.
// Each vendor exposes a different forcing mechanism (function calling,
// tool use, controlled generation, or an OpenAI-compatible passthrough);
// the adapters hide those differences.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/johnqh/shapeshyft-api/pkg/schema"
)

// ProviderID identifies one of the supported provider kinds.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGemini    ProviderID = "gemini"
	ProviderLLMServer ProviderID = "llm_server"
)

// ToolName is the function/tool name every adapter declares for structured
// output. Responses that do not invoke this tool are rejected.
const ToolName = "structured_response"

const (
	// RequestTimeout bounds every outbound provider call.
	RequestTimeout = 120 * time.Second

	defaultMaxTokens = 4096
)

// ErrMalformedResponse is wrapped into errors returned when a provider does
// not come back with its expected structured-call shape.
var ErrMalformedResponse = errors.New("malformed provider response")

// Request is the canonical, provider-agnostic request. It is constructed
// once per call and never mutated.
type Request struct {
	Prompt       string
	SystemPrompt string
	OutputSchema *schema.JSONSchema
	Model        string  // optional override of the adapter's configured model
	Temperature  float64 // defaults to 0
	MaxTokens    int     // defaults to 4096
}

// Usage tracks token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the canonical result all providers normalize to.
type Response struct {
	Content     any    // parsed JSON conforming to the output schema
	RawResponse string // raw serialized model output
	Usage       Usage
	Model       string // model actually used
	Provider    ProviderID
	LatencyMs   int64 // wall clock around the network call only
}

// Config carries per-call provider configuration. Hosted providers require
// APIKey; the llm_server provider requires EndpointURL.
type Config struct {
	APIKey      string
	EndpointURL string
	Model       string
}

// PayloadBuilder builds a provider-native request payload without touching
// the network. Used for payload-only endpoints where the caller dispatches
// the request itself.
type PayloadBuilder interface {
	BuildPayload(req Request) (map[string]any, error)
}

// Provider is the full adapter contract.
type Provider interface {
	PayloadBuilder

	// Generate executes the request and parses the provider's native
	// response. It fails with an ErrMalformedResponse-wrapped error when the
	// provider does not return its expected structured-call shape.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider identifier.
	Name() ProviderID
}

// resolveModel picks the per-request override, then the configured model,
// then the provider default.
func resolveModel(req Request, configured, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	if configured != "" {
		return configured
	}
	return fallback
}

func resolveMaxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}
