package model

import "time"

// EventKind names a progress event.
type EventKind string

const (
	EventStepStart         EventKind = "step_start"
	EventReasoningComplete EventKind = "reasoning_complete"
	EventActionStart       EventKind = "action_start"
	EventActionComplete    EventKind = "action_complete"
	EventFinalResult       EventKind = "final_result"
)

// ProgressEvent is delivered to a ProgressSink as the run advances.
type ProgressEvent struct {
	Kind      EventKind      `json:"event"`
	RunID     string         `json:"run_id"`
	StepIndex int            `json:"step"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ProgressSink observes a run. It is called synchronously from the node
// that produced the event, so it should return quickly.
type ProgressSink func(ProgressEvent)
