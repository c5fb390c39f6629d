// MCP Provider - exposes one MCP server's tools under a provider name.
//
// Information Hiding:
// - MCP client lifecycle hidden
// - Schema parsing hidden
// - Result content flattening hidden

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/richinex/strand/model"
	"github.com/richinex/strand/tools"
)

// Provider adapts an MCP client to tools.Provider. The server's name in
// the configuration is the provider name the oracle addresses.
// The caller must call Close() when done to release the server process.
type Provider struct {
	name   string
	client *Client
	logger *slog.Logger

	mu          sync.Mutex
	descriptors []model.ToolDescriptor
}

// NewProvider wraps a connected client.
func NewProvider(name string, client *Client, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{name: name, client: client, logger: logger}
}

// Connect starts the server and wraps it as a provider.
func Connect(ctx context.Context, name string, server ServerConfig, logger *slog.Logger) (*Provider, error) {
	client, err := Start(ctx, server, logger)
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: %w", name, err)
	}
	return NewProvider(name, client, logger), nil
}

// ConnectAll starts every configured server. Servers that fail to start are
// logged and skipped.
func ConnectAll(ctx context.Context, cfg *Config, logger *slog.Logger) []*Provider {
	if logger == nil {
		logger = slog.Default()
	}
	var providers []*Provider
	for _, name := range cfg.Names() {
		p, err := Connect(ctx, name, cfg.MCPServers[name], logger)
		if err != nil {
			logger.Warn("skipping MCP server", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}
	return providers
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.name
}

// Capabilities lists the server's tools.
func (p *Provider) Capabilities(ctx context.Context) (model.Catalogue, error) {
	infos, err := p.client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: failed to list tools: %w", p.name, err)
	}

	descriptors := make([]model.ToolDescriptor, 0, len(infos))
	for _, info := range infos {
		descriptors = append(descriptors, model.ToolDescriptor{
			Name:        info.Name,
			Description: stringValue(info.Description),
			Parameters:  parseParameters(info.InputSchema),
		})
	}

	p.mu.Lock()
	p.descriptors = descriptors
	p.mu.Unlock()
	return model.Catalogue{p.name: descriptors}, nil
}

// Invoke calls a tool on the server. A result flagged isError comes back as
// error-marked text.
func (p *Provider) Invoke(ctx context.Context, provider, operation string, params map[string]any) (string, error) {
	if provider != p.name {
		return "", fmt.Errorf("%w: %s", tools.ErrUnknownProvider, provider)
	}

	p.mu.Lock()
	known := p.descriptors
	p.mu.Unlock()
	if known != nil && !(model.Catalogue{p.name: known}).Has(p.name, operation) {
		return "", fmt.Errorf("%w: %s.%s", tools.ErrUnknownOperation, provider, operation)
	}

	result, err := p.client.CallTool(ctx, operation, params)
	if err != nil {
		return "", fmt.Errorf("%s.%s: %w", provider, operation, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		p.logger.Debug("MCP tool reported failure", "provider", provider, "operation", operation)
		if text == "" {
			text = "tool reported an error"
		}
		return tools.ErrorPrefix + text, nil
	}
	return text, nil
}

// Close stops the server.
func (p *Provider) Close() error {
	return p.client.Close()
}

// flattenContent joins text items; other content types are summarized.
func flattenContent(items []Content) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch item.Type {
		case "text":
			parts = append(parts, item.Text)
		default:
			desc := "[" + item.Type + " content"
			if item.MimeType != "" {
				desc += " " + item.MimeType
			}
			parts = append(parts, desc+"]")
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// parseParameters extracts tool parameters from the JSON schema.
// Returns parameters in sorted order for deterministic output.
func parseParameters(inputSchema json.RawMessage) []model.ToolParameter {
	var schema struct {
		Properties map[string]struct {
			Type        any    `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}

	if err := json.Unmarshal(inputSchema, &schema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool)
	for _, r := range schema.Required {
		requiredSet[r] = true
	}

	// Extract and sort parameter names for deterministic output
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]model.ToolParameter, 0, len(names))
	for _, name := range names {
		prop := schema.Properties[name]
		params = append(params, model.ToolParameter{
			Name:        name,
			Description: prop.Description,
			Type:        schemaType(prop.Type),
			Required:    requiredSet[name],
		})
	}

	return params
}

// schemaType reduces a JSON schema "type" (string or list) to one name.
func schemaType(t any) string {
	switch v := t.(type) {
	case string:
		if v != "" {
			return v
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "null" {
				return s
			}
		}
	}
	return "string"
}

// stringValue returns empty string for nil pointers.
func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ tools.Provider = (*Provider)(nil)
