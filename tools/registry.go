// Registry - the in-process tool provider.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Parameter schemas compiled once at registration

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/richinex/strand/model"
)

// LocalProviderName is the provider name the registry answers to by default.
const LocalProviderName = "local"

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry manages local tools and exposes them as a single Provider.
type Registry struct {
	name   string
	logger *slog.Logger

	mu    sync.RWMutex
	tools map[string]registered
}

// NewRegistry creates an empty registry answering to name
// (LocalProviderName when empty).
func NewRegistry(name string, logger *slog.Logger) *Registry {
	if name == "" {
		name = LocalProviderName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		name:   name,
		logger: logger,
		tools:  make(map[string]registered),
	}
}

// Name returns the provider name.
func (r *Registry) Name() string {
	return r.name
}

// Register adds a tool. Returns error if a tool with the same name already
// exists or its parameter schema does not compile.
func (r *Registry) Register(tool Tool) error {
	d := tool.Descriptor()
	schema, err := compileParams(d)
	if err != nil {
		return fmt.Errorf("tool '%s': %w", d.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tool '%s' already registered", d.Name)
	}
	r.tools[d.Name] = registered{tool: tool, schema: schema}
	return nil
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Capabilities returns the registry's tools under its provider name.
func (r *Registry) Capabilities(context.Context) (model.Catalogue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]model.ToolDescriptor, 0, len(r.tools))
	for _, name := range r.sortedNamesLocked() {
		descriptors = append(descriptors, r.tools[name].tool.Descriptor())
	}
	return model.Catalogue{r.name: descriptors}, nil
}

// Invoke runs a registered tool. Parameter violations and tool failures
// come back as error-marked text.
func (r *Registry) Invoke(ctx context.Context, provider, operation string, params map[string]any) (string, error) {
	if provider != r.name {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	r.mu.RLock()
	entry, ok := r.tools[operation]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownOperation, provider, operation)
	}

	if params == nil {
		params = map[string]any{}
	}
	if err := validateParams(entry.schema, params); err != nil {
		return FailureResultf("invalid parameters for %s: %v", operation, err).Text(), nil
	}

	result, err := entry.tool.Execute(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s.%s: %w", provider, operation, err)
	}
	if !result.Success() {
		r.logger.Debug("tool reported failure", "provider", provider, "operation", operation, "error", result.Error)
	}
	return result.Text(), nil
}

// Description returns a formatted description of all tools for LLM prompts.
func (r *Registry) Description() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var descriptions []string
	for _, name := range r.sortedNamesLocked() {
		descriptions = append(descriptions, DescribeTool(r.tools[name].tool.Descriptor()))
	}
	return strings.Join(descriptions, "\n\n")
}

func (r *Registry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DescribeTool renders one descriptor for a prompt.
func DescribeTool(d model.ToolDescriptor) string {
	var params []string
	for _, p := range d.Parameters {
		required := "optional"
		if p.Required {
			required = "required"
		}
		params = append(params, fmt.Sprintf("  - %s (%s): %s [%s]",
			p.Name, p.Type, p.Description, required))
	}
	if len(params) == 0 {
		return fmt.Sprintf("Tool: %s\nDescription: %s", d.Name, d.Description)
	}
	return fmt.Sprintf("Tool: %s\nDescription: %s\nParameters:\n%s",
		d.Name, d.Description, strings.Join(params, "\n"))
}

var jsonTypes = map[string]bool{
	"string": true, "integer": true, "number": true,
	"boolean": true, "array": true, "object": true,
}

// compileParams builds a JSON schema from a descriptor's parameter list.
func compileParams(d model.ToolDescriptor) (*jsonschema.Schema, error) {
	properties := map[string]any{}
	required := []string{}
	for _, p := range d.Parameters {
		prop := map[string]any{}
		if jsonTypes[p.Type] {
			prop["type"] = p.Type
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc, err := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString(d.Name+".params.json", string(doc))
}

func validateParams(schema *jsonschema.Schema, params map[string]any) error {
	// Round-trip so numbers and nested values have the shapes the validator expects.
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}

// Verify Registry implements Provider
var _ Provider = (*Registry)(nil)
