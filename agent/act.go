package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/strand/model"
	"github.com/richinex/strand/tools"
)

// ErrNothingStaged is returned when a node runs without the input the
// reasoning node should have staged for it.
var ErrNothingStaged = errors.New("no staged input for node")

type actPrep struct {
	action  model.ActionSpec
	step    int
	timeout time.Duration
}

// actNode invokes one tool operation and records its result.
type actNode struct {
	tools tools.Provider
	cfg   Config
}

func (n *actNode) Prep(_ context.Context, rc *model.RunContext) (actPrep, error) {
	if rc.Pending.Action == nil {
		return actPrep{}, fmt.Errorf("%w: action", ErrNothingStaged)
	}
	a := *rc.Pending.Action
	rc.Emit(model.EventActionStart, map[string]any{
		"kind":       string(model.StepToolAction),
		"provider":   a.Provider,
		"operation":  a.Operation,
		"parameters": a.Parameters,
	})
	return actPrep{
		action:  a,
		step:    rc.StepIndex,
		timeout: n.cfg.toolTimeout(a.Operation),
	}, nil
}

func (n *actNode) Timeout(p actPrep) time.Duration {
	return p.timeout
}

func (n *actNode) Exec(ctx context.Context, p actPrep) (string, error) {
	text, err := n.tools.Invoke(ctx, p.action.Provider, p.action.Operation, p.action.Parameters)
	if errors.Is(err, tools.ErrUnknownProvider) || errors.Is(err, tools.ErrUnknownOperation) {
		// Retrying cannot make a missing tool appear.
		return tools.ErrorPrefix + err.Error(), nil
	}
	return text, err
}

// Fallback records the exhausted call as a failed step.
func (n *actNode) Fallback(_ context.Context, _ actPrep, lastErr error) (string, error) {
	return tools.ErrorPrefix + lastErr.Error(), nil
}

func (n *actNode) Post(_ context.Context, rc *model.RunContext, p actPrep, text string) (model.Outcome, error) {
	success := !tools.IsErrorResult(text)
	if strings.TrimSpace(text) == "" {
		text = tools.ErrorPrefix + "tool returned an empty result"
	}

	id := model.NewHistoryID(model.PrefixAction, p.step)
	rc.History.Append(model.HistoryEntry{
		StepIndex:     p.step,
		StepKind:      model.StepToolAction,
		ProviderName:  p.action.Provider,
		OperationName: p.action.Operation,
		Parameters:    p.action.Parameters,
		ResultText:    text,
		Justification: p.action.Justification,
		Success:       success,
		HistoryID:     id,
	})
	rc.Pending.Action = nil

	rc.Emit(model.EventActionComplete, map[string]any{
		"kind":       string(model.StepToolAction),
		"provider":   p.action.Provider,
		"operation":  p.action.Operation,
		"history_id": id,
		"success":    success,
		"result":     truncate(text, 500),
	})
	return model.OutcomeDecide, nil
}
