package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDecision marks a decision that violates the field contract of its outcome.
var ErrInvalidDecision = errors.New("invalid decision")

// Decision is the oracle's structured answer for one reasoning step.
// Which optional fields must be set depends on Outcome; see ParseDecision.
type Decision struct {
	Rationale  string  `json:"rationale" jsonschema_description:"Why this is the right next step"`
	Outcome    Outcome `json:"outcome" jsonschema:"enum=continue,enum=llm_processing,enum=process_image,enum=generate_speech,enum=complete"`
	GoalStatus string  `json:"goal_status" jsonschema_description:"Short progress report toward the goal"`

	Action *ActionSpec `json:"action,omitempty" jsonschema_description:"Tool call to run when outcome is continue"`

	ProcessingTask   string `json:"processing_task,omitempty" jsonschema_description:"Name of the transformation when outcome is llm_processing"`
	ProcessingPrompt string `json:"processing_prompt,omitempty" jsonschema_description:"Instructions for the transformation"`
	InputHistoryRef  string `json:"input_history_ref,omitempty" jsonschema_description:"History id(s) to transform, comma separated, or user_request"`

	MediaPrompt string       `json:"media_prompt,omitempty" jsonschema_description:"Image description when outcome is process_image"`
	MediaConfig *MediaConfig `json:"media_config,omitempty"`

	SpeechText   string        `json:"speech_text,omitempty" jsonschema_description:"Text to speak when outcome is generate_speech"`
	SpeechConfig *SpeechConfig `json:"speech_config,omitempty"`
}

// ActionSpec names a tool operation and its parameters.
type ActionSpec struct {
	Provider      string         `json:"provider"`
	Operation     string         `json:"operation"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Justification string         `json:"justification,omitempty"`
}

// MediaConfig tunes image generation.
type MediaConfig struct {
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// SpeechConfig tunes speech synthesis.
type SpeechConfig struct {
	Voice        string  `json:"voice,omitempty"`
	Model        string  `json:"model,omitempty"`
	Format       string  `json:"format,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
	Instructions string  `json:"instructions,omitempty"`
}

// DecisionError describes which field broke the decision contract.
type DecisionError struct {
	Outcome Outcome
	Field   string
	Reason  string
}

func (e *DecisionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid decision: %s", e.Reason)
	}
	if e.Outcome == "" {
		return fmt.Sprintf("invalid decision: field %q %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid decision (%s): field %q %s", e.Outcome, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidDecision.
func (e *DecisionError) Unwrap() error {
	return ErrInvalidDecision
}

// ParseDecision decodes a decision and checks that every field required by
// its outcome is present with the expected type. The returned error is a
// *DecisionError whenever the payload breaks that contract.
func ParseDecision(raw []byte) (Decision, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Decision{}, &DecisionError{Reason: "payload is not a JSON object"}
	}

	outcome, err := requireString(fields, "", "outcome", true)
	if err != nil {
		return Decision{}, err
	}
	o := Outcome(outcome)
	if !o.isDecisionOutcome() {
		return Decision{}, &DecisionError{Field: "outcome", Reason: fmt.Sprintf("has unknown value %q", outcome)}
	}
	if _, err := requireString(fields, o, "rationale", false); err != nil {
		return Decision{}, err
	}
	if _, err := requireString(fields, o, "goal_status", false); err != nil {
		return Decision{}, err
	}

	switch o {
	case OutcomeContinue:
		action, ok := fields["action"].(map[string]any)
		if !ok {
			return Decision{}, missingOrMistyped(fields, o, "action", "object")
		}
		if _, err := requireString(action, o, "action.provider", true, "provider"); err != nil {
			return Decision{}, err
		}
		if _, err := requireString(action, o, "action.operation", true, "operation"); err != nil {
			return Decision{}, err
		}
		if p, present := action["parameters"]; present && p != nil {
			if _, ok := p.(map[string]any); !ok {
				return Decision{}, &DecisionError{Outcome: o, Field: "action.parameters", Reason: "must be an object"}
			}
		}
	case OutcomeLLMProcessing:
		for _, name := range []string{"processing_task", "processing_prompt", "input_history_ref"} {
			if _, err := requireString(fields, o, name, true); err != nil {
				return Decision{}, err
			}
		}
	case OutcomeProcessImage:
		if _, err := requireString(fields, o, "media_prompt", true); err != nil {
			return Decision{}, err
		}
	case OutcomeGenerateSpeech:
		if _, err := requireString(fields, o, "speech_text", true); err != nil {
			return Decision{}, err
		}
	}

	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return Decision{}, &DecisionError{Outcome: o, Reason: err.Error()}
	}
	if d.Action != nil && d.Action.Parameters == nil {
		d.Action.Parameters = map[string]any{}
	}
	return d, nil
}

func (o Outcome) isDecisionOutcome() bool {
	for _, known := range decisionOutcomes {
		if o == known {
			return true
		}
	}
	return false
}

// requireString checks fields[key] is a string. When nonEmpty is set, a
// blank string is rejected too. label names the field in errors; key
// defaults to label.
func requireString(fields map[string]any, o Outcome, label string, nonEmpty bool, key ...string) (string, error) {
	k := label
	if len(key) > 0 {
		k = key[0]
	}
	v, present := fields[k]
	if !present || v == nil {
		return "", &DecisionError{Outcome: o, Field: label, Reason: "is required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &DecisionError{Outcome: o, Field: label, Reason: fmt.Sprintf("must be a string, got %T", v)}
	}
	if nonEmpty && strings.TrimSpace(s) == "" {
		return "", &DecisionError{Outcome: o, Field: label, Reason: "must not be empty"}
	}
	return s, nil
}

func missingOrMistyped(fields map[string]any, o Outcome, key, want string) error {
	if v, present := fields[key]; present && v != nil {
		return &DecisionError{Outcome: o, Field: key, Reason: fmt.Sprintf("must be an %s, got %T", want, v)}
	}
	return &DecisionError{Outcome: o, Field: key, Reason: "is required"}
}
