package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/richinex/strand/llm"
	"github.com/richinex/strand/model"
)

type summarizePrep struct {
	goal       string
	goalStatus string
	history    model.History
	prompt     string
}

// summarizeNode writes the run's final answer.
type summarizeNode struct {
	oracle llm.Oracle
	cfg    Config
}

func (n *summarizeNode) Prep(_ context.Context, rc *model.RunContext) (summarizePrep, error) {
	return summarizePrep{
		goal:       rc.Goal,
		goalStatus: rc.GoalStatus,
		history:    slices.Clone(rc.History),
		prompt:     buildSummaryPrompt(rc.Goal, rc.GoalStatus, rc.History),
	}, nil
}

func (n *summarizeNode) Timeout(summarizePrep) time.Duration {
	return n.cfg.OracleTimeout
}

func (n *summarizeNode) Exec(ctx context.Context, p summarizePrep) (string, error) {
	opts := []llm.CallOption{llm.WithSystemPrompt(summarySystemPrompt)}
	if n.cfg.ProcessingModel != "" {
		opts = append(opts, llm.WithModel(n.cfg.ProcessingModel))
	}
	text, err := n.oracle.Complete(ctx, p.prompt, opts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (n *summarizeNode) Fallback(_ context.Context, p summarizePrep, _ error) (string, error) {
	return fallbackSummary(p.goal, p.goalStatus, p.history), nil
}

func (n *summarizeNode) Post(_ context.Context, rc *model.RunContext, p summarizePrep, text string) (model.Outcome, error) {
	if text == "" {
		text = fallbackSummary(p.goal, p.goalStatus, p.history)
	}
	rc.FinalResult = text
	return model.OutcomeNone, nil
}

// fallbackSummary describes a run from its history alone. It depends on
// nothing but its arguments.
func fallbackSummary(goal, goalStatus string, h model.History) string {
	ok, failed := h.Counts()

	var b strings.Builder
	fmt.Fprintf(&b, "Worked on %q with %d recorded result(s): %d succeeded, %d failed.", goal, len(h), ok, failed)
	if goalStatus != "" {
		fmt.Fprintf(&b, "\nStatus: %s", goalStatus)
	}

	var refs []string
	for _, e := range h {
		if r, ok := e.Parameters["asset_refs"].([]string); ok && e.Success {
			refs = append(refs, r...)
		}
	}
	if len(refs) > 0 {
		fmt.Fprintf(&b, "\nGenerated files: %s", strings.Join(refs, ", "))
	}

	for i := len(h) - 1; i >= 0; i-- {
		e := h[i]
		if e.Success && e.StepKind != model.StepUserInput {
			fmt.Fprintf(&b, "\nLatest result (%s.%s):\n%s", e.ProviderName, e.OperationName, truncate(e.ResultText, 2000))
			break
		}
	}
	return b.String()
}
