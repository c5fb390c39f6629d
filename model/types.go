// Package model provides the domain types shared across packages.
//
// Everything a run needs to thread between nodes lives here: history
// entries, oracle decisions, staged artifacts, the run context itself and
// the progress events emitted while it is driven.
package model

import "time"

// StepKind classifies a history entry.
type StepKind string

const (
	StepToolAction        StepKind = "tool_action"
	StepContentProcessing StepKind = "content_processing"
	StepUserInput         StepKind = "user_input"
)

// Outcome is the symbolic label a node returns after finalizing.
// The flow uses it, together with the node kind, to pick the next node.
type Outcome string

const (
	// OutcomeNone ends the run.
	OutcomeNone Outcome = ""

	// Reasoning outcomes.
	OutcomeContinue       Outcome = "continue"
	OutcomeLLMProcessing  Outcome = "llm_processing"
	OutcomeProcessImage   Outcome = "process_image"
	OutcomeGenerateSpeech Outcome = "generate_speech"
	OutcomeComplete       Outcome = "complete"

	// OutcomeDecide hands control back to the reasoning node.
	OutcomeDecide Outcome = "decide"
)

// IsTerminal reports whether the outcome ends the run.
func (o Outcome) IsTerminal() bool {
	return o == OutcomeNone
}

// decisionOutcomes lists the outcomes the oracle may choose.
var decisionOutcomes = []Outcome{
	OutcomeContinue,
	OutcomeLLMProcessing,
	OutcomeProcessImage,
	OutcomeGenerateSpeech,
	OutcomeComplete,
}

// DecisionOutcomes returns the outcomes a decision may carry, in a stable order.
func DecisionOutcomes() []Outcome {
	out := make([]Outcome, len(decisionOutcomes))
	copy(out, decisionOutcomes)
	return out
}

// HistoryEntry records the result of one step.
// Entries are immutable once appended to a History.
type HistoryEntry struct {
	StepIndex     int            `json:"step_index"`
	StepKind      StepKind       `json:"step_kind"`
	ProviderName  string         `json:"provider_name"`
	OperationName string         `json:"operation_name"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	ResultText    string         `json:"result_text"`
	Justification string         `json:"justification,omitempty"`
	Success       bool           `json:"success"`
	HistoryID     string         `json:"history_id"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ToolParameter describes one parameter of a tool operation.
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolDescriptor describes one operation offered by a tool provider.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
}

// Catalogue maps provider names to the operations they offer.
type Catalogue map[string][]ToolDescriptor

// Has reports whether the provider offers the named operation.
func (c Catalogue) Has(provider, operation string) bool {
	for _, d := range c[provider] {
		if d.Name == operation {
			return true
		}
	}
	return false
}
