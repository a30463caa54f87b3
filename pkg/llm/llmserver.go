package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultLLMServerModel = "default"

// LLMServerProvider forwards an OpenAI-compatible payload to a user-supplied
// server and parses whatever dialect comes back. Self-hosted servers are
// inconsistent about response shapes, so parsing tries a fixed priority list:
//
//  1. OpenAI tool-call arguments
//  2. OpenAI message content
//  3. OpenAI plain-text choice
//  4. Anthropic tool_use block input
//  5. Anthropic text block
//  6. generic "response"/"text"/"output" string fields
//  7. the whole body as the answer
//
// Once a shape matches, JSON is extracted from its text via ExtractJSON.
type LLMServerProvider struct {
	endpointURL string
	model       string
	client      *http.Client
}

// NewLLMServerProvider creates a custom-server adapter. The endpoint URL is
// required at construction.
func NewLLMServerProvider(cfg Config) (*LLMServerProvider, error) {
	if cfg.EndpointURL == "" {
		return nil, fmt.Errorf("llm_server endpoint URL required")
	}
	return &LLMServerProvider{
		endpointURL: cfg.EndpointURL,
		model:       cfg.Model,
		client:      &http.Client{Timeout: RequestTimeout},
	}, nil
}

// BuildPayload returns the OpenAI-compatible request body forwarded to the
// custom server.
func (p *LLMServerProvider) BuildPayload(req Request) (map[string]any, error) {
	return openAICompatPayload(resolveModel(req, p.model, defaultLLMServerModel), req), nil
}

// EndpointURL returns the configured server URL.
func (p *LLMServerProvider) EndpointURL() string {
	return p.endpointURL
}

// serverResponse is a superset of the response dialects we accept.
type serverResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	Response string `json:"response"`
	Text     string `json:"text"`
	Output   string `json:"output"`
	Model    string `json:"model"`
	Usage    struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		InputTokens      int `json:"input_tokens"`
		OutputTokens     int `json:"output_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate posts the payload to the custom server and normalizes the
// response.
func (p *LLMServerProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	payload, err := p.BuildPayload(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm_server request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("llm_server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	text, parsed := answerText(respBody)

	var content any
	var raw string
	if parsed != nil {
		content = parsed
		raw = text
	} else {
		content, raw, err = ExtractJSON(text)
		if err != nil {
			return nil, err
		}
	}

	var sr serverResponse
	_ = json.Unmarshal(respBody, &sr)

	model := sr.Model
	if model == "" {
		model = resolveModel(req, p.model, defaultLLMServerModel)
	}

	return &Response{
		Content:     content,
		RawResponse: raw,
		Usage:       sr.usage(),
		Model:       model,
		Provider:    ProviderLLMServer,
		LatencyMs:   latency.Milliseconds(),
	}, nil
}

// Name returns the provider identifier.
func (p *LLMServerProvider) Name() ProviderID {
	return ProviderLLMServer
}

// answerText walks the response dialects in priority order and returns the
// answer text. When the matched shape carries JSON directly (tool arguments
// or tool_use input), the already-parsed value is returned alongside it.
func answerText(body []byte) (string, any) {
	var sr serverResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		// Not JSON at all; treat the whole body as the answer.
		return string(body), nil
	}

	// OpenAI dialects.
	if len(sr.Choices) > 0 {
		choice := sr.Choices[0]
		for _, call := range choice.Message.ToolCalls {
			if call.Function.Arguments == "" {
				continue
			}
			var v any
			if err := json.Unmarshal([]byte(call.Function.Arguments), &v); err == nil {
				return call.Function.Arguments, v
			}
			return call.Function.Arguments, nil
		}
		if choice.Message.Content != "" {
			return choice.Message.Content, nil
		}
		if choice.Text != "" {
			return choice.Text, nil
		}
	}

	// Anthropic dialects.
	for _, block := range sr.Content {
		if block.Type == "tool_use" && len(block.Input) > 0 {
			var v any
			if err := json.Unmarshal(block.Input, &v); err == nil {
				return string(block.Input), v
			}
			return string(block.Input), nil
		}
	}
	for _, block := range sr.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}

	// Generic single-field dialects.
	if sr.Response != "" {
		return sr.Response, nil
	}
	if sr.Text != "" {
		return sr.Text, nil
	}
	if sr.Output != "" {
		return sr.Output, nil
	}

	return string(body), nil
}

// usage resolves token counts from either naming convention, defaulting
// absent counts to zero.
func (sr *serverResponse) usage() Usage {
	prompt := sr.Usage.PromptTokens
	if prompt == 0 {
		prompt = sr.Usage.InputTokens
	}
	completion := sr.Usage.CompletionTokens
	if completion == 0 {
		completion = sr.Usage.OutputTokens
	}
	return normalizeUsage(prompt, completion, sr.Usage.TotalTokens)
}

var _ Provider = (*LLMServerProvider)(nil)
