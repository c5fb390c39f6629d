// Package agent provides the ReAct engine: the nodes that reason, act,
// process, generate media and summarize, wired into a flow.
//
// Contains the types returned to and accepted from callers of Execute.
package agent

import (
	"errors"
	"time"

	"github.com/richinex/strand/flow"
	"github.com/richinex/strand/model"
)

var (
	// ErrEmptyGoal is reported when Execute is called without a goal.
	ErrEmptyGoal = errors.New("goal is empty")
	// ErrPanic is reported when a node panicked during a run.
	ErrPanic = errors.New("run panicked")
)

// Result is what a run produced. FinalResult is never empty.
type Result struct {
	RunID          string
	FinalResult    string
	MediaAssetRefs []string
	GoalStatus     string
	Status         flow.Status
	// Steps is the number of reasoning steps consumed.
	Steps    int
	History  model.History
	Duration time.Duration
	// Err is the error that ended a failed run, nil otherwise.
	Err error
}

// IsSuccess reports whether the run completed normally.
func (r Result) IsSuccess() bool {
	return r.Status == flow.StatusCompleted && r.Err == nil
}

// RunOption configures a single Execute call.
type RunOption func(*runOptions)

type runOptions struct {
	progress model.ProgressSink
}

// WithProgress observes the run's progress events.
func WithProgress(sink model.ProgressSink) RunOption {
	return func(o *runOptions) { o.progress = sink }
}
