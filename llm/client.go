// LLMClient - the oracle the engine consults, built on any Provider.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/richinex/strand/internal/jsonx"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response from provider")

// Oracle answers free-text and structured prompts.
//
// Implementations do not retry; the calling node owns the retry policy.
type Oracle interface {
	Complete(ctx context.Context, prompt string, opts ...CallOption) (string, error)
	CompleteStructured(ctx context.Context, prompt string, schema *Schema, opts ...CallOption) (json.RawMessage, error)
}

// CallOption adjusts a single oracle call.
type CallOption func(*callOptions)

type callOptions struct {
	model        string
	systemPrompt string
}

// WithModel overrides the provider's model for one call.
func WithModel(model string) CallOption {
	return func(o *callOptions) { o.model = model }
}

// WithSystemPrompt sets the system prompt for one call.
func WithSystemPrompt(prompt string) CallOption {
	return func(o *callOptions) { o.systemPrompt = prompt }
}

func applyCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Client wraps a Provider as an Oracle.
type Client struct {
	provider Provider
	logger   *slog.Logger
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{provider: provider, logger: logger}
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Complete sends prompt and returns the reply text.
func (c *Client) Complete(ctx context.Context, prompt string, opts ...CallOption) (string, error) {
	o := applyCallOptions(opts)
	resp, err := c.chat(ctx, Request{
		Model:    o.model,
		Messages: buildMessages(o.systemPrompt, prompt),
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// CompleteStructured asks for a JSON object satisfying schema and returns
// it once validated. Extraction and validation failures wrap
// ErrStructuredOutput; transport failures are returned as they are.
func (c *Client) CompleteStructured(ctx context.Context, prompt string, schema *Schema, opts ...CallOption) (json.RawMessage, error) {
	if schema == nil {
		return nil, errors.New("structured completion requires a schema")
	}
	o := applyCallOptions(opts)
	format := NewJSONSchemaFormat(schema.Name, schema.JSON())
	format.JSONSchema.Description = schema.Description

	resp, err := c.chat(ctx, Request{
		Model:    o.model,
		Messages: buildMessages(o.systemPrompt, prompt),
		Format:   format,
	})
	if err != nil {
		return nil, err
	}

	doc, err := jsonx.Extract(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructuredOutput, err)
	}
	doc = dropNullFields(doc)
	if err := schema.Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) chat(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	resp, err := c.provider.Chat(ctx, req)
	model := req.Model
	if model == "" {
		model = c.provider.Model()
	}
	if err != nil {
		c.logger.Debug("llm call failed", "provider", c.provider.Name(), "model", model, "duration", time.Since(start), "error", err)
		return Response{}, fmt.Errorf("%s: %w", c.provider.Name(), err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return Response{}, fmt.Errorf("%s: %w", c.provider.Name(), ErrEmptyResponse)
	}
	attrs := []any{"provider", c.provider.Name(), "model", model, "duration", time.Since(start)}
	if resp.Usage != nil {
		attrs = append(attrs, "prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	}
	c.logger.Debug("llm call", attrs...)
	return resp, nil
}

// dropNullFields removes top-level properties set to null. Models often
// emit "field": null for optional fields that do not apply.
func dropNullFields(doc json.RawMessage) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return doc
	}
	changed := false
	for k, v := range fields {
		if string(v) == "null" {
			delete(fields, k)
			changed = true
		}
	}
	if !changed {
		return doc
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return doc
	}
	return out
}

func buildMessages(systemPrompt, prompt string) []ChatMessage {
	var messages []ChatMessage
	if systemPrompt != "" {
		messages = append(messages, SystemMessage(systemPrompt))
	}
	return append(messages, UserMessage(prompt))
}

// withSchemaInstruction adds a JSON-only instruction, and the schema when
// one is given, to the system message. Used by providers that cannot
// enforce a schema natively.
func withSchemaInstruction(messages []ChatMessage, schema json.RawMessage) []ChatMessage {
	instruction := "Respond with a single JSON object and nothing else."
	if len(schema) > 0 {
		instruction += " The object must satisfy this JSON schema:\n" + string(schema)
	}

	out := make([]ChatMessage, 0, len(messages)+1)
	found := false
	for _, m := range messages {
		if m.Role == "system" && !found {
			m.Content = strings.TrimSpace(m.Content + "\n\n" + instruction)
			found = true
		}
		out = append(out, m)
	}
	if !found {
		out = append([]ChatMessage{SystemMessage(instruction)}, out...)
	}
	return out
}

// Verify Client implements Oracle
var _ Oracle = (*Client)(nil)
