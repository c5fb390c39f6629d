package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/strand/llm"
	"github.com/richinex/strand/model"
	"github.com/richinex/strand/tools"
)

// processProvider is the provider name recorded for content processing.
const processProvider = "llm"

type processPrep struct {
	req    model.ProcessingRequest
	step   int
	inputs []model.HistoryEntry
	refErr error
}

// processResult carries either the transformed text or the reason the
// step failed; both are recorded in history.
type processResult struct {
	text string
	err  error
}

// processNode transforms earlier results with a free-text oracle call.
type processNode struct {
	oracle llm.Oracle
	cfg    Config
}

func (n *processNode) Prep(_ context.Context, rc *model.RunContext) (processPrep, error) {
	if rc.Pending.Processing == nil {
		return processPrep{}, fmt.Errorf("%w: processing", ErrNothingStaged)
	}
	req := *rc.Pending.Processing
	inputs, err := rc.History.Lookup(req.Ref)
	rc.Emit(model.EventActionStart, map[string]any{
		"kind":              string(model.StepContentProcessing),
		"task":              req.Task,
		"input_history_ref": req.Ref,
	})
	return processPrep{req: req, step: rc.StepIndex, inputs: inputs, refErr: err}, nil
}

func (n *processNode) Timeout(processPrep) time.Duration {
	return n.cfg.OracleTimeout
}

func (n *processNode) Exec(ctx context.Context, p processPrep) (processResult, error) {
	if p.refErr != nil {
		return processResult{err: p.refErr}, nil
	}
	opts := []llm.CallOption{llm.WithSystemPrompt(processingSystemPrompt)}
	if n.cfg.ProcessingModel != "" {
		opts = append(opts, llm.WithModel(n.cfg.ProcessingModel))
	}
	text, err := n.oracle.Complete(ctx, buildProcessingPrompt(p.req, p.inputs), opts...)
	if err != nil {
		return processResult{}, err
	}
	return processResult{text: strings.TrimSpace(text)}, nil
}

func (n *processNode) Fallback(_ context.Context, _ processPrep, lastErr error) (processResult, error) {
	return processResult{err: lastErr}, nil
}

func (n *processNode) Post(_ context.Context, rc *model.RunContext, p processPrep, res processResult) (model.Outcome, error) {
	text, success := res.text, res.err == nil
	if !success {
		text = tools.ErrorPrefix + res.err.Error()
	}

	id := model.NewHistoryID(model.PrefixLLM, p.step)
	rc.History.Append(model.HistoryEntry{
		StepIndex:     p.step,
		StepKind:      model.StepContentProcessing,
		ProviderName:  processProvider,
		OperationName: p.req.Task,
		Parameters: map[string]any{
			"prompt":            p.req.Prompt,
			"input_history_ref": p.req.Ref,
		},
		ResultText:    text,
		Justification: p.req.Rationale,
		Success:       success,
		HistoryID:     id,
	})
	rc.Pending.Processing = nil

	rc.Emit(model.EventActionComplete, map[string]any{
		"kind":       string(model.StepContentProcessing),
		"task":       p.req.Task,
		"history_id": id,
		"success":    success,
		"result":     truncate(text, 500),
	})
	return model.OutcomeDecide, nil
}
