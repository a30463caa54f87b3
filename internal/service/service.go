// Package service executes endpoint requests: it resolves the tenant's
// project and endpoint, validates the request against the endpoint's
// declared shape, and either returns a provider-native payload or calls the
// provider and normalizes the result.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/johnqh/shapeshyft-api/internal/analytics"
	"github.com/johnqh/shapeshyft-api/internal/crypto"
	"github.com/johnqh/shapeshyft-api/internal/logger"
	"github.com/johnqh/shapeshyft-api/internal/store"
	"github.com/johnqh/shapeshyft-api/pkg/llm"
	"github.com/johnqh/shapeshyft-api/pkg/prompt"
	"github.com/johnqh/shapeshyft-api/pkg/schema"
)

// Error taxonomy. Handlers map these onto status codes; everything else is
// an internal error.
var (
	// ErrValidation covers malformed input, a missing text field, and verb
	// mismatches. No provider call has been attempted.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration covers missing or inactive credentials and unknown
	// providers: the endpoint cannot execute until its owner fixes it.
	ErrConfiguration = errors.New("endpoint misconfigured")

	// ErrProvider covers failures of the provider call itself. A failed
	// analytics event has already been recorded when this surfaces.
	ErrProvider = errors.New("LLM processing failed")
)

// providerFactory constructs a calling-capable adapter. Swappable for tests.
type providerFactory func(id llm.ProviderID, cfg llm.Config) (llm.Provider, error)

// payloadFactory constructs a payload-only builder. Swappable for tests.
type payloadFactory func(id llm.ProviderID, cfg llm.Config) (llm.PayloadBuilder, error)

// Service is the execution orchestrator.
type Service struct {
	store       store.Store
	recorder    *analytics.Recorder
	masterKey   []byte
	newProvider providerFactory
	newBuilder  payloadFactory
}

// New creates the orchestrator. masterKey decrypts stored credentials.
func New(s store.Store, recorder *analytics.Recorder, masterKey []byte) *Service {
	return &Service{
		store:       s,
		recorder:    recorder,
		masterKey:   masterKey,
		newProvider: llm.New,
		newBuilder:  llm.NewPayloadBuilder,
	}
}

// ExecuteRequest is one incoming endpoint invocation, already framed by the
// HTTP layer.
type ExecuteRequest struct {
	Subject      string // authenticated owner
	ProjectSlug  string
	EndpointSlug string
	Verb         string // HTTP method actually used
	Input        any    // decoded body, or query parameters for read verbs
}

// UsageSummary is the caller-facing usage block of an LLM-calling response.
type UsageSummary struct {
	TokensInput        int   `json:"tokens_input"`
	TokensOutput       int   `json:"tokens_output"`
	LatencyMs          int64 `json:"latency_ms"`
	EstimatedCostCents int64 `json:"estimated_cost_cents"`
}

// Result is the outcome of an execution. Exactly one of Payload / Output is
// populated, by endpoint kind.
type Result struct {
	// Payload-only executions.
	Payload      map[string]any
	EndpointHint string

	// LLM-calling executions.
	Output any
	Usage  *UsageSummary

	Provider llm.ProviderID
}

// Execute runs the state machine for one request.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*Result, error) {
	project, err := s.store.GetProject(ctx, req.Subject, req.ProjectSlug)
	if err != nil {
		return nil, fmt.Errorf("project %q: %w", req.ProjectSlug, err)
	}

	endpoint, err := s.store.GetEndpoint(ctx, project.ID, req.EndpointSlug)
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: %w", req.EndpointSlug, err)
	}

	if !strings.EqualFold(req.Verb, endpoint.Verb) {
		return nil, fmt.Errorf("%w: endpoint accepts %s, got %s", ErrValidation, endpoint.Verb, req.Verb)
	}

	if err := checkTextInput(endpoint.Kind, req.Input); err != nil {
		return nil, err
	}

	credential, err := s.store.GetCredential(ctx, project.ID, endpoint.Provider)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: no %s credential configured", ErrConfiguration, endpoint.Provider)
		}
		return nil, fmt.Errorf("credential lookup: %w", err)
	}
	if !credential.Active {
		return nil, fmt.Errorf("%w: %s credential is inactive", ErrConfiguration, endpoint.Provider)
	}

	llmReq := s.canonicalRequest(endpoint, req.Input)

	if endpoint.Kind.PayloadOnly() {
		return s.executePayloadOnly(endpoint, credential, llmReq)
	}
	return s.executeLLM(ctx, endpoint, credential, llmReq)
}

// PreviewPrompt returns the combined prompt an execution would build,
// without touching providers or analytics.
func (s *Service) PreviewPrompt(ctx context.Context, req ExecuteRequest) (string, error) {
	project, err := s.store.GetProject(ctx, req.Subject, req.ProjectSlug)
	if err != nil {
		return "", fmt.Errorf("project %q: %w", req.ProjectSlug, err)
	}
	endpoint, err := s.store.GetEndpoint(ctx, project.ID, req.EndpointSlug)
	if err != nil {
		return "", fmt.Errorf("endpoint %q: %w", req.EndpointSlug, err)
	}
	if err := checkTextInput(endpoint.Kind, req.Input); err != nil {
		return "", err
	}
	return prompt.Build(promptInput(endpoint, req.Input)), nil
}

// checkTextInput enforces the text-kind contract: the input must be an
// object with a non-empty string "text" field.
func checkTextInput(kind store.EndpointKind, input any) error {
	if !kind.RequiresText() {
		return nil
	}
	obj, ok := input.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: request body must be a JSON object with a text field", ErrValidation)
	}
	text, ok := obj["text"].(string)
	if !ok || text == "" {
		return fmt.Errorf("%w: text field is required", ErrValidation)
	}
	return nil
}

func promptInput(endpoint *store.Endpoint, input any) prompt.Input {
	return prompt.Input{
		Data:         input,
		OutputSchema: endpoint.OutputSchema,
		Instructions: endpoint.Instructions,
		Context:      endpoint.Context,
		Provider:     endpoint.Provider,
	}
}

func (s *Service) canonicalRequest(endpoint *store.Endpoint, input any) llm.Request {
	system, user := prompt.BuildLegacy(promptInput(endpoint, input))
	return llm.Request{
		Prompt:       user,
		SystemPrompt: system,
		OutputSchema: endpoint.OutputSchema,
		Model:        endpoint.Model,
		Temperature:  endpoint.Temperature,
		MaxTokens:    endpoint.MaxTokens,
	}
}

// executePayloadOnly builds the provider-native payload without decrypting
// the credential: the caller dispatches the request themselves and holds
// their own key.
func (s *Service) executePayloadOnly(endpoint *store.Endpoint, credential *store.Credential, req llm.Request) (*Result, error) {
	builder, err := s.newBuilder(endpoint.Provider, llm.Config{
		Model:       endpoint.Model,
		EndpointURL: credential.EndpointURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	payload, err := builder.BuildPayload(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	hint := llm.EndpointHint(endpoint.Provider)
	if endpoint.Provider == llm.ProviderLLMServer {
		hint = credential.EndpointURL
	}

	return &Result{
		Payload:      payload,
		EndpointHint: hint,
		Provider:     endpoint.Provider,
	}, nil
}

// executeLLM decrypts the credential, calls the provider, and records
// exactly one analytics event whether the call succeeds or fails. Output
// that does not conform to the endpoint's schema counts as a failed attempt.
func (s *Service) executeLLM(ctx context.Context, endpoint *store.Endpoint, credential *store.Credential, req llm.Request) (*Result, error) {
	cfg := llm.Config{
		Model:       endpoint.Model,
		EndpointURL: credential.EndpointURL,
	}
	if credential.Ciphertext != "" {
		apiKey, err := crypto.Decrypt(s.masterKey, credential.Ciphertext, credential.Nonce)
		if err != nil {
			return nil, fmt.Errorf("%w: credential decryption failed: %v", ErrConfiguration, err)
		}
		cfg.APIKey = apiKey
	}

	provider, err := s.newProvider(endpoint.Provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	logger.Debug("calling provider",
		"provider", endpoint.Provider,
		"endpoint_id", endpoint.ID,
		"model", endpoint.Model)

	start := time.Now()
	resp, err := provider.Generate(ctx, req)
	elapsed := time.Since(start).Milliseconds()

	if err == nil && endpoint.OutputSchema != nil {
		if verrs := schema.Validate(endpoint.OutputSchema, resp.Content); len(verrs) > 0 {
			logger.Warn("provider output failed schema validation",
				"provider", endpoint.Provider,
				"endpoint_id", endpoint.ID,
				"violations", len(verrs))
			err = fmt.Errorf("output does not conform to schema: %s", verrs[0].Error())
		}
	}

	attempt := analytics.Attempt{
		EndpointID: endpoint.ID,
		Provider:   endpoint.Provider,
		Model:      endpoint.Model,
		LatencyMs:  elapsed,
		Err:        err,
	}
	if resp != nil {
		attempt.Model = resp.Model
		attempt.Usage = resp.Usage
		if resp.LatencyMs > 0 {
			attempt.LatencyMs = resp.LatencyMs
		}
	}
	s.recorder.Record(attempt)

	if err != nil {
		logger.ErrorContext(ctx, "provider call failed",
			"provider", endpoint.Provider,
			"endpoint_id", endpoint.ID,
			"error", err)
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	return &Result{
		Output:   resp.Content,
		Provider: endpoint.Provider,
		Usage: &UsageSummary{
			TokensInput:        resp.Usage.PromptTokens,
			TokensOutput:       resp.Usage.CompletionTokens,
			LatencyMs:          resp.LatencyMs,
			EstimatedCostCents: analytics.CostCents(resp.Model, resp.Usage),
		},
	}, nil
}
