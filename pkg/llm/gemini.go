package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/johnqh/shapeshyft-api/pkg/schema"
)

const (
	defaultGeminiModel   = "gemini-1.5-flash"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
)

// GeminiProvider forces structured output through controlled generation:
// the response MIME type is pinned to JSON and the output schema rides in
// the generation config (with meta-keywords stripped, since Gemini rejects
// $schema/$id/definitions/$defs).
type GeminiProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewGeminiProvider creates a Gemini adapter. The API key is required at
// construction.
func NewGeminiProvider(cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key required")
	}
	return newGemini(cfg), nil
}

func newGeminiPayloadBuilder(cfg Config) *GeminiProvider {
	return newGemini(cfg)
}

func newGemini(cfg Config) *GeminiProvider {
	baseURL := cfg.EndpointURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: RequestTimeout},
	}
}

// geminiResponse is the subset of the generateContent response we consume.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// BuildPayload returns the native generateContent request body.
func (p *GeminiProvider) BuildPayload(req Request) (map[string]any, error) {
	payload := map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]any{{"text": req.Prompt}},
			},
		},
		"generationConfig": map[string]any{
			"temperature":      req.Temperature,
			"maxOutputTokens":  resolveMaxTokens(req),
			"responseMimeType": "application/json",
			"responseSchema":   schema.StripMeta(outputSchemaMap(req)),
		},
	}
	if req.SystemPrompt != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": req.SystemPrompt}},
		}
	}
	return payload, nil
}

// Generate executes the generateContent call and parses the JSON body the
// controlled generation produced.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	payload, err := p.BuildPayload(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	model := resolveModel(req, p.model, defaultGeminiModel)
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrMalformedResponse, err)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no candidates returned", ErrMalformedResponse)
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	var content any
	if err := json.Unmarshal([]byte(text), &content); err != nil {
		return nil, fmt.Errorf("%w: response text is not valid JSON: %v", ErrMalformedResponse, err)
	}

	return &Response{
		Content:     content,
		RawResponse: text,
		Usage: normalizeUsage(
			parsed.UsageMetadata.PromptTokenCount,
			parsed.UsageMetadata.CandidatesTokenCount,
			parsed.UsageMetadata.TotalTokenCount,
		),
		Model:     model,
		Provider:  ProviderGemini,
		LatencyMs: latency.Milliseconds(),
	}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() ProviderID {
	return ProviderGemini
}

var _ Provider = (*GeminiProvider)(nil)
