package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	reflectschema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrStructuredOutput marks a structured reply that could not be extracted
// or does not satisfy the requested schema.
var ErrStructuredOutput = errors.New("structured output does not satisfy schema")

// Schema is a JSON schema used both to ask a provider for structured output
// and to validate what comes back.
type Schema struct {
	Name        string
	Description string

	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// SchemaFor reflects a schema from the Go type T. Struct fields without
// omitempty are required and unknown properties are rejected.
func SchemaFor[T any](name, description string) (*Schema, error) {
	r := &reflectschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	s := r.Reflect(&zero)
	s.Version = ""
	s.ID = ""
	if description != "" {
		s.Description = description
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", name, err)
	}
	return NewSchema(name, description, raw)
}

// NewSchema compiles a schema document.
func NewSchema(name, description string, raw json.RawMessage) (*Schema, error) {
	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return &Schema{
		Name:        name,
		Description: description,
		raw:         raw,
		compiled:    compiled,
	}, nil
}

// JSON returns the schema document.
func (s *Schema) JSON() json.RawMessage {
	return s.raw
}

// Indented returns the schema document formatted for display.
func (s *Schema) Indented() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, s.raw, "", "  "); err != nil {
		return string(s.raw)
	}
	return buf.String()
}

// Validate checks doc against the schema. Failures wrap ErrStructuredOutput.
func (s *Schema) Validate(doc json.RawMessage) error {
	var decoded any
	if err := json.Unmarshal(doc, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrStructuredOutput, err)
	}
	if err := s.compiled.Validate(decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrStructuredOutput, err)
	}
	return nil
}
