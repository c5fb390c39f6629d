// Package config provides application settings loaded from environment
// variables, optionally overlaid by a YAML file.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup
//
// LoadFile then applies any values present in a YAML file on top.

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	LLM    LLMConfig    `yaml:"llm"`
	Engine EngineConfig `yaml:"engine"`
	Media  MediaConfig  `yaml:"media"`
	Tools  ToolsConfig  `yaml:"tools"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   uint32  `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// EngineConfig holds run loop configuration.
type EngineConfig struct {
	StepBudget int `yaml:"step_budget"`

	// Retry policy applied to every node.
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Jitter     float64       `yaml:"jitter"`

	// Per-attempt tool timeouts. Operations whose name contains one of
	// SlowOperations get SlowToolTimeout.
	ToolTimeout     time.Duration `yaml:"tool_timeout"`
	SlowToolTimeout time.Duration `yaml:"slow_tool_timeout"`
	SlowOperations  []string      `yaml:"slow_operations"`

	// Per-attempt deadlines for oracle calls and for media or speech
	// generation.
	OracleTimeout time.Duration `yaml:"oracle_timeout"`
	MediaTimeout  time.Duration `yaml:"media_timeout"`

	// Per-node oracle model overrides; empty uses the provider's model.
	ReasoningModel  string `yaml:"reasoning_model"`
	ProcessingModel string `yaml:"processing_model"`

	// EnhancePrompts asks the oracle to improve media and speech prompts.
	EnhancePrompts bool `yaml:"enhance_prompts"`

	FallbackRoute FallbackRoute `yaml:"fallback_route"`
}

// FallbackRoute is the tool call the reasoning node falls back to when the
// oracle is unavailable and the goal names external content it recognizes.
type FallbackRoute struct {
	Pattern   string `yaml:"pattern"`
	Provider  string `yaml:"provider"`
	Operation string `yaml:"operation"`
	Param     string `yaml:"param"`
}

// MediaConfig holds image and speech generation configuration.
type MediaConfig struct {
	ImageProvider string `yaml:"image_provider"`
	ImageModel    string `yaml:"image_model"`
	SpeechModel   string `yaml:"speech_model"`
	Voice         string `yaml:"voice"`
	AssetDir      string `yaml:"asset_dir"`
}

// ToolsConfig holds local tool and MCP configuration.
type ToolsConfig struct {
	VaultDir       string        `yaml:"vault_dir"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	AllowedDomains []string      `yaml:"allowed_domains"`
	MCPConfig      string        `yaml:"mcp_config"`
}

// DefaultVideoPattern matches the video URLs the fallback route recognizes.
const DefaultVideoPattern = `https?://(?:www\.|m\.)?(?:youtube\.com/(?:watch\?v=|shorts/|embed/)|youtu\.be/|vimeo\.com/)[\w\-?=&/%.]+`

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// New creates settings for the specified provider, loading values from environment variables.
// Returns an error if the provider is unknown or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	provider = NormalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	collect(err)
	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.2)
	collect(err)

	stepBudget, err := getEnvInt("STRAND_STEP_BUDGET", 10)
	collect(err)
	maxRetries, err := getEnvInt("STRAND_MAX_RETRIES", 3)
	collect(err)
	baseDelay, err := getEnvDuration("STRAND_BASE_DELAY", time.Second)
	collect(err)
	maxDelay, err := getEnvDuration("STRAND_MAX_DELAY", 30*time.Second)
	collect(err)
	toolTimeout, err := getEnvDuration("STRAND_TOOL_TIMEOUT", 60*time.Second)
	collect(err)
	slowToolTimeout, err := getEnvDuration("STRAND_SLOW_TOOL_TIMEOUT", 5*time.Minute)
	collect(err)
	oracleTimeout, err := getEnvDuration("STRAND_ORACLE_TIMEOUT", 2*time.Minute)
	collect(err)
	mediaTimeout, err := getEnvDuration("STRAND_MEDIA_TIMEOUT", 5*time.Minute)
	collect(err)
	enhance, err := getEnvBool("STRAND_ENHANCE_PROMPTS", false)
	collect(err)
	fetchTimeout, err := getEnvDuration("STRAND_FETCH_TIMEOUT", 30*time.Second)
	collect(err)

	if len(errs) > 0 {
		return Settings{}, errs[0]
	}

	// Get model from environment or use default
	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.defaultModel
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       model,
			BaseURL:     os.Getenv("LLM_BASE_URL"),
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Engine: EngineConfig{
			StepBudget:      stepBudget,
			MaxRetries:      maxRetries,
			BaseDelay:       baseDelay,
			MaxDelay:        maxDelay,
			Jitter:          0.25,
			ToolTimeout:     toolTimeout,
			SlowToolTimeout: slowToolTimeout,
			SlowOperations:  getEnvList("STRAND_SLOW_OPERATIONS", []string{"transcript", "video", "audio", "render", "crawl"}),
			OracleTimeout:   oracleTimeout,
			MediaTimeout:    mediaTimeout,
			ReasoningModel:  os.Getenv("STRAND_REASONING_MODEL"),
			ProcessingModel: os.Getenv("STRAND_PROCESSING_MODEL"),
			EnhancePrompts:  enhance,
			FallbackRoute: FallbackRoute{
				Pattern:   getEnvString("STRAND_FALLBACK_PATTERN", DefaultVideoPattern),
				Provider:  getEnvString("STRAND_FALLBACK_PROVIDER", "local"),
				Operation: getEnvString("STRAND_FALLBACK_OPERATION", "fetch_url"),
				Param:     getEnvString("STRAND_FALLBACK_PARAM", "url"),
			},
		},
		Media: MediaConfig{
			ImageProvider: getEnvString("STRAND_IMAGE_PROVIDER", "openai"),
			ImageModel:    os.Getenv("STRAND_IMAGE_MODEL"),
			SpeechModel:   os.Getenv("STRAND_SPEECH_MODEL"),
			Voice:         os.Getenv("STRAND_VOICE"),
			AssetDir:      getEnvString("STRAND_ASSET_DIR", "strand-assets"),
		},
		Tools: ToolsConfig{
			VaultDir:       os.Getenv("STRAND_VAULT_DIR"),
			FetchTimeout:   fetchTimeout,
			AllowedDomains: getEnvList("STRAND_ALLOWED_DOMAINS", nil),
			MCPConfig:      os.Getenv("STRAND_MCP_CONFIG"),
		},
	}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Validate checks cross-field constraints.
func (s Settings) Validate() error {
	switch {
	case s.Engine.StepBudget < 1:
		return fmt.Errorf("step budget must be at least 1, got %d", s.Engine.StepBudget)
	case s.Engine.MaxRetries < 1:
		return fmt.Errorf("max retries must be at least 1, got %d", s.Engine.MaxRetries)
	case s.Engine.BaseDelay < 0 || s.Engine.MaxDelay < 0:
		return fmt.Errorf("backoff delays must not be negative")
	case s.Engine.Jitter < 0 || s.Engine.Jitter >= 1:
		return fmt.Errorf("jitter must be in [0, 1), got %g", s.Engine.Jitter)
	case s.Engine.ToolTimeout <= 0 || s.Engine.SlowToolTimeout <= 0:
		return fmt.Errorf("tool timeouts must be positive")
	case s.Engine.OracleTimeout <= 0 || s.Engine.MediaTimeout <= 0:
		return fmt.Errorf("oracle and media timeouts must be positive")
	}
	if _, err := getProviderInfo(NormalizeProvider(s.LLM.Provider)); err != nil {
		return err
	}
	switch s.Media.ImageProvider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown image provider: %q", s.Media.ImageProvider)
	}
	return nil
}

// NormalizeProvider converts provider aliases to canonical names.
func NormalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = NormalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = NormalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the supported provider names in sorted order.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}

// getEnvList splits a comma-separated variable, dropping blank items.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
