// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - OpenAI-compatible vendors (DeepSeek) via a different base URL

package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// OpenAIProvider implements the Provider interface for OpenAI and
// OpenAI-compatible APIs.
type OpenAIProvider struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float32
	// strictSchema is false for vendors that only understand json_object.
	strictSchema bool
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	baseURL      string
	name         string
	strictSchema bool
}

// WithBaseURL points the provider at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(o *openAIOptions) { o.baseURL = url }
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32, opts ...OpenAIOption) *OpenAIProvider {
	o := openAIOptions{name: "openai", strictSchema: true}
	for _, opt := range opts {
		opt(&o)
	}

	config := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		config.BaseURL = o.baseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(config),
		name:         o.name,
		model:        model,
		maxTokens:    int(maxTokens),
		temperature:  temperature,
		strictSchema: o.strictSchema,
	}
}

// NewDeepSeekProvider creates a provider for DeepSeek's OpenAI-compatible API.
// DeepSeek accepts json_object but not json_schema, so schemas are passed
// as instructions instead. opts apply after the DeepSeek defaults.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32, opts ...OpenAIOption) *OpenAIProvider {
	base := []OpenAIOption{
		WithBaseURL(deepseekBaseURL),
		func(o *openAIOptions) {
			o.name = "deepseek"
			o.strictSchema = false
		},
	}
	return NewOpenAIProvider(apiKey, model, maxTokens, temperature, append(base, opts...)...)
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request with an optional response format.
func (p *OpenAIProvider) Chat(ctx context.Context, r Request) (Response, error) {
	messages := r.Messages
	model := p.model
	if r.Model != "" {
		model = r.Model
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}

	if r.Format.wantsJSON() {
		if p.strictSchema && r.Format.Type == ResponseFormatJSONSchema && r.Format.JSONSchema != nil {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:        r.Format.JSONSchema.Name,
					Description: r.Format.JSONSchema.Description,
					Schema:      r.Format.JSONSchema.Schema,
					Strict:      r.Format.JSONSchema.Strict,
				},
			}
		} else {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
			messages = withSchemaInstruction(messages, r.Format.schema())
		}
	}
	req.Messages = convertToOpenAIMessages(messages)

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return Response{Content: content, Usage: usage}, nil
}

// convertToOpenAIMessages converts our ChatMessage to openai.ChatCompletionMessage
func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		result[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
