package llm

import "fmt"

// factory constructs a calling-capable adapter, enforcing that provider's
// credential requirement.
type factory func(cfg Config) (Provider, error)

var registry = map[ProviderID]factory{
	ProviderOpenAI: func(cfg Config) (Provider, error) {
		return NewOpenAIProvider(cfg)
	},
	ProviderAnthropic: func(cfg Config) (Provider, error) {
		return NewAnthropicProvider(cfg)
	},
	ProviderGemini: func(cfg Config) (Provider, error) {
		return NewGeminiProvider(cfg)
	},
	ProviderLLMServer: func(cfg Config) (Provider, error) {
		return NewLLMServerProvider(cfg)
	},
}

// New creates an adapter by provider identifier. Missing credentials are
// construction-time failures.
func New(id ProviderID, cfg Config) (Provider, error) {
	f, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (available: openai, anthropic, gemini, llm_server)", id)
	}
	return f(cfg)
}

// NewPayloadBuilder creates an adapter for payload-only use. Hosted
// providers need no credential to build a payload; the llm_server provider
// still requires its endpoint URL since the payload is addressed to it.
func NewPayloadBuilder(id ProviderID, cfg Config) (PayloadBuilder, error) {
	switch id {
	case ProviderOpenAI:
		return newOpenAIPayloadBuilder(cfg), nil
	case ProviderAnthropic:
		return newAnthropicPayloadBuilder(cfg), nil
	case ProviderGemini:
		return newGeminiPayloadBuilder(cfg), nil
	case ProviderLLMServer:
		return NewLLMServerProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s (available: openai, anthropic, gemini, llm_server)", id)
	}
}

// IsValid reports whether id is in the closed provider set.
func IsValid(id ProviderID) bool {
	_, ok := registry[id]
	return ok
}

// endpointHints documents where each hosted provider expects the built
// payload to be sent. The llm_server hint is a placeholder resolved from the
// endpoint's stored URL.
var endpointHints = map[ProviderID]string{
	ProviderOpenAI:    "https://api.openai.com/v1/chat/completions",
	ProviderAnthropic: "https://api.anthropic.com/v1/messages",
	ProviderGemini:    "https://generativelanguage.googleapis.com/v1beta/models/{model}:generateContent",
	ProviderLLMServer: "<your configured server URL>",
}

// EndpointHint returns the human-readable expected endpoint for a provider.
func EndpointHint(id ProviderID) string {
	if hint, ok := endpointHints[id]; ok {
		return hint
	}
	return ""
}
