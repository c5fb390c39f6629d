// ReAct (Reason + Act) engine.
//
// This is the canonical entry point of a run. A run walks
// discover → reason ⇄ {act, process, media, speech} → summarize,
// threading one RunContext through every node.
//
// Information Hiding:
// - Flow wiring and node construction hidden
// - Panic and failure recovery hidden
// - Run identity, logging and telemetry hidden

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/richinex/strand/flow"
	"github.com/richinex/strand/model"
	"github.com/richinex/strand/telemetry"
	"github.com/richinex/strand/tools"
)

// Engine executes goals. An Engine is safe for concurrent use; every
// Execute call gets its own RunContext.
type Engine struct {
	flow    *flow.Flow
	tools   tools.Provider
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Tools returns the engine's tool provider.
func (e *Engine) Tools() tools.Provider {
	return e.tools
}

// Execute runs goal with at most stepBudget reasoning steps. A
// non-positive budget uses the configured one. Cancelling ctx stops the
// run at the next node boundary.
//
// Execute never panics and always returns a non-empty FinalResult; a
// failed run carries an explanation in FinalResult and the cause in Err.
func (e *Engine) Execute(ctx context.Context, goal string, stepBudget int, opts ...RunOption) Result {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	if stepBudget <= 0 {
		stepBudget = e.cfg.StepBudget
	}

	runID := uuid.NewString()
	logger := e.logger.With("run_id", runID)
	rc := model.NewRunContext(runID, goal, stepBudget)
	rc.Progress = o.progress
	rc.Logger = logger

	ctx, span := e.tracer.Start(ctx, "engine.run",
		attribute.String("run.id", runID),
		attribute.Int("run.budget", stepBudget),
	)
	defer span.End()

	logger.Info("run started", "goal", goal, "budget", stepBudget)

	var status flow.Status
	var err error
	if strings.TrimSpace(goal) == "" {
		status, err = flow.StatusFailed, ErrEmptyGoal
	} else {
		status, err = e.drive(ctx, rc)
	}

	if err != nil {
		e.tracer.RecordError(span, err)
		if rc.GoalStatus == "" || status == flow.StatusFailed {
			rc.GoalStatus = fmt.Sprintf("failed: %v", err)
		}
		rc.EnsureFinalResult(fmt.Sprintf("Sorry, I could not complete %q: %v", goal, err))
	}
	// A run can end on an outcome without an edge before summarizing.
	rc.EnsureFinalResult(fallbackSummary(goal, rc.GoalStatus, rc.History))

	rc.Emit(model.EventFinalResult, map[string]any{
		"status":           string(status),
		"goal_status":      rc.GoalStatus,
		"result":           rc.FinalResult,
		"media_asset_refs": slices.Clone(rc.MediaAssetRefs),
	})

	e.metrics.RunFinished(string(status), rc.StepIndex)
	span.SetAttributes(
		attribute.String("run.status", string(status)),
		attribute.Int("run.steps", rc.StepIndex),
	)
	logger.Info("run finished", "status", string(status), "steps", rc.StepIndex, "duration", rc.Elapsed())

	return Result{
		RunID:          runID,
		FinalResult:    rc.FinalResult,
		MediaAssetRefs: slices.Clone(rc.MediaAssetRefs),
		GoalStatus:     rc.GoalStatus,
		Status:         status,
		Steps:          rc.StepIndex,
		History:        slices.Clone(rc.History),
		Duration:       rc.Elapsed().Round(time.Millisecond),
		Err:            err,
	}
}

// drive runs the flow, turning a panic in any node into an error.
func (e *Engine) drive(ctx context.Context, rc *model.RunContext) (status flow.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			rc.Logger.Error("node panicked", "panic", fmt.Sprint(r))
			status, err = flow.StatusFailed, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return e.flow.Run(ctx, rc)
}
