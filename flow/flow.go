// Package flow drives a run through a graph of nodes.
//
// Edges are keyed by (node kind, outcome). The flow runs the entry node,
// follows the edge selected by the outcome it returns, and stops when a
// node returns no outcome, when an outcome has no edge, or when the run's
// context is cancelled.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/richinex/strand/model"
	"github.com/richinex/strand/node"
)

// Status is how a run ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// GoalStatusCancelled is written to the run context when a run is cancelled.
const GoalStatusCancelled = "cancelled"

// ErrHopLimit is returned when a run invokes more nodes than allowed.
var ErrHopLimit = errors.New("flow: node hop limit exceeded")

type edge struct {
	from    node.Kind
	outcome model.Outcome
}

// Flow is a transition table plus the loop that walks it. A Flow is
// immutable once running starts and may be shared by sequential runs.
type Flow struct {
	entry   node.Runnable
	edges   map[edge]node.Runnable
	maxHops int
	logger  *slog.Logger
}

// Option configures a Flow.
type Option func(*Flow)

// WithMaxHops bounds the number of node invocations per run. Zero derives
// the bound from the run's step budget.
func WithMaxHops(n int) Option {
	return func(f *Flow) { f.maxHops = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a flow starting at entry.
func New(entry node.Runnable, opts ...Option) *Flow {
	f := &Flow{
		entry:  entry,
		edges:  make(map[edge]node.Runnable),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register adds the edge from --outcome--> to. Registering the same
// (from, outcome) pair twice replaces the earlier target.
func (f *Flow) Register(from node.Kind, outcome model.Outcome, to node.Runnable) *Flow {
	f.edges[edge{from: from, outcome: outcome}] = to
	return f
}

// Next returns the node registered for (from, outcome).
func (f *Flow) Next(from node.Kind, outcome model.Outcome) (node.Runnable, bool) {
	to, ok := f.edges[edge{from: from, outcome: outcome}]
	return to, ok
}

// Run walks the graph from the entry node until a terminal is reached.
//
// Cancellation is checked before each node. When ctx is done, or a node
// fails because ctx was cancelled, the run is cleaned up: staged work is
// discarded, the goal status becomes "cancelled" and the final result is
// guaranteed to be non-empty. Any other node error ends the run with
// StatusFailed and is returned.
func (f *Flow) Run(ctx context.Context, rc *model.RunContext) (Status, error) {
	limit := f.hopLimit(rc)
	current := f.entry

	for hops := 0; current != nil; hops++ {
		if ctx.Err() != nil {
			Cancel(rc)
			return StatusCancelled, nil
		}
		if hops >= limit {
			return StatusFailed, fmt.Errorf("%w: %d nodes", ErrHopLimit, limit)
		}

		kind := current.Kind()
		outcome, err := current.Run(ctx, rc)
		if err != nil {
			if ctx.Err() != nil {
				f.logger.Info("run cancelled", "run_id", rc.RunID, "node", string(kind), "step", rc.StepIndex)
				Cancel(rc)
				return StatusCancelled, nil
			}
			f.logger.Error("node failed", "run_id", rc.RunID, "node", string(kind), "step", rc.StepIndex, "error", err)
			return StatusFailed, err
		}

		if outcome.IsTerminal() {
			f.logger.Debug("terminal node", "run_id", rc.RunID, "node", string(kind))
			return StatusCompleted, nil
		}
		next, ok := f.Next(kind, outcome)
		if !ok {
			f.logger.Debug("no edge for outcome, ending run",
				"run_id", rc.RunID, "node", string(kind), "outcome", string(outcome))
			return StatusCompleted, nil
		}
		current = next
	}
	return StatusCompleted, nil
}

// hopLimit allows two node invocations per reasoning step (reason plus the
// node it selects) plus headroom for discovery and summary.
func (f *Flow) hopLimit(rc *model.RunContext) int {
	if f.maxHops > 0 {
		return f.maxHops
	}
	budget := rc.StepBudget
	if budget < 1 {
		budget = 1
	}
	return 2*budget + 4
}

// Cancel performs cancellation cleanup on rc. It is idempotent.
func Cancel(rc *model.RunContext) {
	rc.Cancelled = true
	rc.Pending.Clear()
	rc.GoalStatus = GoalStatusCancelled
	rc.EnsureFinalResult(cancelledResult(rc))
}

func cancelledResult(rc *model.RunContext) string {
	ok, failed := rc.History.Counts()
	return fmt.Sprintf("Run cancelled after %d step(s) while working on %q (%d successful, %d failed).",
		rc.StepIndex, rc.Goal, ok, failed)
}
