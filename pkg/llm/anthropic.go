package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicProvider forces structured output through tool use: a single
// "structured_response" tool carries the output schema as its input shape
// and the tool choice pins the model to it. The tool input block IS the
// structured result.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates an Anthropic adapter. The API key is required
// at construction.
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(RequestTimeout),
	}
	if cfg.EndpointURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.EndpointURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func newAnthropicPayloadBuilder(cfg Config) *AnthropicProvider {
	return &AnthropicProvider{model: cfg.Model}
}

// BuildPayload returns the native messages-API request body.
func (p *AnthropicProvider) BuildPayload(req Request) (map[string]any, error) {
	payload := map[string]any{
		"model":       resolveModel(req, p.model, defaultAnthropicModel),
		"max_tokens":  resolveMaxTokens(req),
		"temperature": req.Temperature,
		"messages": []map[string]any{
			{"role": "user", "content": req.Prompt},
		},
		"tools": []map[string]any{
			{
				"name":         ToolName,
				"description":  toolDescription,
				"input_schema": outputSchemaMap(req),
			},
		},
		"tool_choice": map[string]any{"type": "tool", "name": ToolName},
	}
	if req.SystemPrompt != "" {
		payload["system"] = req.SystemPrompt
	}
	return payload, nil
}

// Generate executes the message call and extracts the forced tool_use block.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := resolveModel(req, p.model, defaultAnthropicModel)
	schemaMap := outputSchemaMap(req)

	properties, _ := schemaMap["properties"].(map[string]any)
	var required []string
	switch r := schemaMap["required"].(type) {
	case []string:
		required = r
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(resolveMaxTokens(req)),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        ToolName,
					Description: anthropic.String(toolDescription),
					InputSchema: anthropic.ToolInputSchemaParam{
						Type:       "object",
						Properties: properties,
						Required:   required,
					},
				},
			},
		},
		ToolChoice: anthropic.ToolChoiceParamOfTool(ToolName),
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	var raw []byte
	found := false
	for _, block := range resp.Content {
		if tub, ok := block.AsAny().(anthropic.ToolUseBlock); ok && tub.Name == ToolName {
			raw, err = json.Marshal(tub.Input)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to marshal tool input: %v", ErrMalformedResponse, err)
			}
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: expected %s tool_use block", ErrMalformedResponse, ToolName)
	}

	var content any
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("%w: tool input is not valid JSON: %v", ErrMalformedResponse, err)
	}

	return &Response{
		Content:     content,
		RawResponse: string(raw),
		Usage: normalizeUsage(
			int(resp.Usage.InputTokens),
			int(resp.Usage.OutputTokens),
			0,
		),
		Model:     string(resp.Model),
		Provider:  ProviderAnthropic,
		LatencyMs: latency.Milliseconds(),
	}, nil
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() ProviderID {
	return ProviderAnthropic
}

var _ Provider = (*AnthropicProvider)(nil)
