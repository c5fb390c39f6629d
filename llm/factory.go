// Provider factory: turns a provider name and settings into an Oracle.
//
// Quick Start:
//
//	// Defaults, API key from the environment
//	claude, err := llm.ProviderAnthropic.FromEnv()
//
//	// Full configuration, straight to an Oracle
//	oracle, err := llm.ProviderOpenAI.
//	    Model(llm.ModelOpenAIGPT4oMini).
//	    MaxTokens(8192).
//	    Temperature(0.2).
//	    Oracle(apiKey, logger)
//
// Information Hiding:
// - Per-provider defaults (model, key variable, aliases) kept in one table
// - SDK-specific endpoint options hidden behind BaseURL

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderDeepSeek is DeepSeek through its OpenAI-compatible API.
	ProviderDeepSeek
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// Model identifier constants for the supported providers.
const (
	ModelOpenAIGPT4o     = "gpt-4o"
	ModelOpenAIGPT4oMini = "gpt-4o-mini"

	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelAnthropicClaudeHaiku35 = "claude-3-5-haiku-latest"

	ModelDeepSeekChat     = "deepseek-chat"
	ModelDeepSeekReasoner = "deepseek-reasoner"

	ModelGeminiFlash25 = "gemini-2.5-flash"
	ModelGeminiPro25   = "gemini-2.5-pro"
)

type providerSpec struct {
	name         string
	aliases      []string
	keyEnv       string
	defaultModel string
	// customEndpoint is false when the SDK cannot be pointed elsewhere.
	customEndpoint bool
}

var providerSpecs = map[ProviderType]providerSpec{
	ProviderOpenAI:    {"openai", []string{"gpt"}, "OPENAI_API_KEY", ModelOpenAIGPT4o, true},
	ProviderAnthropic: {"anthropic", []string{"claude"}, "ANTHROPIC_API_KEY", ModelAnthropicClaudeSonnet4, true},
	ProviderDeepSeek:  {"deepseek", nil, "DEEPSEEK_API_KEY", ModelDeepSeekChat, true},
	ProviderGemini:    {"gemini", []string{"google"}, "GEMINI_API_KEY", ModelGeminiFlash25, false},
}

// String returns the canonical provider name.
func (p ProviderType) String() string {
	if spec, ok := providerSpecs[p]; ok {
		return spec.name
	}
	return "unknown"
}

// EnvVar returns the environment variable holding this provider's API key.
func (p ProviderType) EnvVar() string {
	return providerSpecs[p].keyEnv
}

// DefaultModel returns the model used when none is configured.
func (p ProviderType) DefaultModel() string {
	return providerSpecs[p].defaultModel
}

// ParseProviderType parses a provider name or alias (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, spec := range providerSpecs {
		if spec.name == name {
			return p, nil
		}
		for _, alias := range spec.aliases {
			if alias == name {
				return p, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown provider: %s", s)
}

// FromEnv creates a provider with defaults, reading API key from environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// ProviderBuilder is a builder for configuring LLM providers.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	baseURL      string
	maxTokens    uint32
	temperature  *float32
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{providerType: providerType}
}

// Model sets the model to use. An empty model keeps the default.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// BaseURL points the provider at a proxy or compatible endpoint. An empty
// URL keeps the vendor's endpoint.
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.baseURL = url
	return b
}

// MaxTokens sets maximum tokens for responses.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// FromEnv builds the provider, reading API key from environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	envVar := b.providerType.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s environment variable not set", b.providerType, envVar)
	}
	return b.build(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	return b.build(key)
}

// Oracle builds the provider and wraps it in a Client.
func (b *ProviderBuilder) Oracle(apiKey string, logger *slog.Logger) (*Client, error) {
	provider, err := b.build(apiKey)
	if err != nil {
		return nil, err
	}
	return NewClient(provider, logger), nil
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	spec, ok := providerSpecs[b.providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %v", b.providerType)
	}
	if b.baseURL != "" && !spec.customEndpoint {
		return nil, fmt.Errorf("%s: custom base URL not supported", spec.name)
	}

	model := b.model
	if model == "" {
		model = spec.defaultModel
	}
	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	temperature := float32(0.2)
	if b.temperature != nil {
		temperature = *b.temperature
	}

	switch b.providerType {
	case ProviderOpenAI, ProviderDeepSeek:
		var opts []OpenAIOption
		if b.baseURL != "" {
			opts = append(opts, WithBaseURL(b.baseURL))
		}
		if b.providerType == ProviderDeepSeek {
			return NewDeepSeekProvider(apiKey, model, maxTokens, temperature, opts...), nil
		}
		return NewOpenAIProvider(apiKey, model, maxTokens, temperature, opts...), nil
	case ProviderAnthropic:
		var opts []option.RequestOption
		if b.baseURL != "" {
			opts = append(opts, option.WithBaseURL(b.baseURL))
		}
		return NewAnthropicProvider(apiKey, model, maxTokens, temperature, opts...), nil
	default:
		return NewGeminiProvider(apiKey, model, maxTokens, temperature), nil
	}
}
