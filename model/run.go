package model

import (
	"fmt"
	"log/slog"
	"time"
)

// ProcessingRequest is a staged content transformation.
type ProcessingRequest struct {
	Task      string
	Prompt    string
	Ref       string
	Rationale string
}

// MediaRequest is a staged image generation.
type MediaRequest struct {
	Prompt    string
	Config    MediaConfig
	Rationale string
}

// SpeechRequest is a staged speech synthesis.
type SpeechRequest struct {
	Text      string
	Config    SpeechConfig
	Rationale string
}

// Pending holds whatever the reasoning node staged for the next node.
// At most one field is set at a time.
type Pending struct {
	Action     *ActionSpec
	Processing *ProcessingRequest
	Media      *MediaRequest
	Speech     *SpeechRequest
}

// Clear drops every staged artifact.
func (p *Pending) Clear() {
	*p = Pending{}
}

// Empty reports whether nothing is staged.
func (p Pending) Empty() bool {
	return p.Action == nil && p.Processing == nil && p.Media == nil && p.Speech == nil
}

// RunContext is the single mutable record threaded through every node of a run.
//
// It has exactly one writer at a time: the node whose finalize phase is
// running. Nodes must not keep references to it beyond their own call.
type RunContext struct {
	RunID      string
	Goal       string
	StepIndex  int
	StepBudget int

	History   History
	Catalogue Catalogue
	Pending   Pending

	GoalStatus     string
	Cancelled      bool
	FinalResult    string
	MediaAssetRefs []string

	Progress ProgressSink
	Logger   *slog.Logger

	startedAt time.Time
}

// NewRunContext creates the context for one run.
func NewRunContext(runID, goal string, stepBudget int) *RunContext {
	return &RunContext{
		RunID:      runID,
		Goal:       goal,
		StepBudget: stepBudget,
		Catalogue:  Catalogue{},
		startedAt:  time.Now(),
	}
}

// Elapsed returns the time since the run context was created.
func (rc *RunContext) Elapsed() time.Duration {
	return time.Since(rc.startedAt)
}

// Emit delivers a progress event to the sink, if any. A panicking sink is
// logged and otherwise ignored.
func (rc *RunContext) Emit(kind EventKind, payload map[string]any) {
	rc.EmitStep(rc.StepIndex, kind, payload)
}

// EmitStep is Emit for a step other than the current one, such as the step
// a reasoning node is about to commit.
func (rc *RunContext) EmitStep(step int, kind EventKind, payload map[string]any) {
	if rc.Progress == nil {
		return
	}
	event := ProgressEvent{
		Kind:      kind,
		RunID:     rc.RunID,
		StepIndex: step,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	defer func() {
		if r := recover(); r != nil {
			rc.logger().Warn("progress sink panicked", "run_id", rc.RunID, "event", string(kind), "panic", fmt.Sprint(r))
		}
	}()
	rc.Progress(event)
}

// EnsureFinalResult sets FinalResult to text when it is still empty.
func (rc *RunContext) EnsureFinalResult(text string) {
	if rc.FinalResult == "" {
		rc.FinalResult = text
	}
}

func (rc *RunContext) logger() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.Default()
}
