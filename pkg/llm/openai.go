package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

// toolDescription is shared by the adapters that declare a forced tool.
const toolDescription = "Return the structured response matching the required schema"

// OpenAIProvider forces structured output through function calling: a single
// "structured_response" tool is declared with the output schema as its
// parameter shape, and the model is required to invoke it.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI adapter. The API key is required at
// construction; a missing key is a configuration error, not a call failure.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(RequestTimeout),
	}
	if cfg.EndpointURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.EndpointURL))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// newOpenAIPayloadBuilder constructs the adapter without credentials for
// payload-only use.
func newOpenAIPayloadBuilder(cfg Config) *OpenAIProvider {
	return &OpenAIProvider{model: cfg.Model}
}

// BuildPayload returns the native chat-completions request body.
func (p *OpenAIProvider) BuildPayload(req Request) (map[string]any, error) {
	return openAICompatPayload(resolveModel(req, p.model, defaultOpenAIModel), req), nil
}

// openAICompatPayload builds a chat-completions request body with the
// forced structured_response tool. Shared with the llm_server adapter,
// which forwards OpenAI-compatible payloads.
func openAICompatPayload(model string, req Request) map[string]any {
	messages := make([]map[string]any, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.SystemPrompt})
	}
	messages = append(messages, map[string]any{"role": "user", "content": req.Prompt})

	return map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": req.Temperature,
		"max_tokens":  resolveMaxTokens(req),
		"tools": []map[string]any{
			{
				"type": "function",
				"function": map[string]any{
					"name":        ToolName,
					"description": toolDescription,
					"parameters":  outputSchemaMap(req),
				},
			},
		},
		"tool_choice": map[string]any{
			"type":     "function",
			"function": map[string]any{"name": ToolName},
		},
	}
}

// Generate executes the chat completion and parses the forced tool call.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := resolveModel(req, p.model, defaultOpenAIModel)

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		MaxTokens:   openai.Int(int64(resolveMaxTokens(req))),
		Temperature: openai.Float(req.Temperature),
		Tools: []openai.ChatCompletionToolParam{
			{
				Function: openai.FunctionDefinitionParam{
					Name:        ToolName,
					Description: openai.String(toolDescription),
					Parameters:  openai.FunctionParameters(outputSchemaMap(req)),
				},
			},
		},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: ToolName},
			},
		},
	}

	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.SystemPrompt))
	}
	params.Messages = append(params.Messages, openai.UserMessage(req.Prompt))

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}

	var arguments string
	for _, call := range resp.Choices[0].Message.ToolCalls {
		if call.Function.Name == ToolName {
			arguments = call.Function.Arguments
			break
		}
	}
	if arguments == "" {
		return nil, fmt.Errorf("%w: expected %s tool call", ErrMalformedResponse, ToolName)
	}

	var content any
	if err := json.Unmarshal([]byte(arguments), &content); err != nil {
		return nil, fmt.Errorf("%w: tool arguments are not valid JSON: %v", ErrMalformedResponse, err)
	}

	return &Response{
		Content:     content,
		RawResponse: arguments,
		Usage: normalizeUsage(
			int(resp.Usage.PromptTokens),
			int(resp.Usage.CompletionTokens),
			int(resp.Usage.TotalTokens),
		),
		Model:     resp.Model,
		Provider:  ProviderOpenAI,
		LatencyMs: latency.Milliseconds(),
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() ProviderID {
	return ProviderOpenAI
}

// outputSchemaMap converts the request's output schema to map form, falling
// back to a permissive object schema when none is set.
func outputSchemaMap(req Request) map[string]any {
	if req.OutputSchema == nil {
		return map[string]any{"type": "object"}
	}
	return req.OutputSchema.ToMap()
}

// normalizeUsage fills the total when the provider does not report one.
func normalizeUsage(prompt, completion, total int) Usage {
	if total == 0 {
		total = prompt + completion
	}
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

var _ Provider = (*OpenAIProvider)(nil)
