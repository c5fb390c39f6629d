package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML file at path onto s. Keys absent from the file
// keep their current values. Unknown keys are rejected.
//
// Example:
//
//	llm:
//	  provider: anthropic
//	engine:
//	  step_budget: 15
//	  slow_tool_timeout: 10m
//	media:
//	  image_provider: gemini
func (s *Settings) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return s.overlay(data)
}

func (s *Settings) overlay(data []byte) error {
	providerBefore := s.LLM.Provider
	modelBefore := s.LLM.Model

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	s.LLM.Provider = NormalizeProvider(s.LLM.Provider)
	// Switching provider without naming a model selects that provider's default.
	if s.LLM.Provider != providerBefore && s.LLM.Model == modelBefore {
		model, err := ModelFor(s.LLM.Provider)
		if err != nil {
			return err
		}
		s.LLM.Model = model
	}
	return s.Validate()
}
