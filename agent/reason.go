package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/richinex/strand/llm"
	"github.com/richinex/strand/model"
	"github.com/richinex/strand/node"
)

// reasonPrep is what one reasoning step needs from the run context.
type reasonPrep struct {
	step   int
	budget int
	goal   string
	prompt string
	// routeTried is set when the fallback route's operation already ran.
	routeTried bool
}

// reasonNode asks the oracle for the next decision and stages its inputs.
type reasonNode struct {
	oracle llm.Oracle
	schema *llm.Schema
	cfg    Config
	logger *slog.Logger
}

// Prep commits the step counter, so a step whose decision fails still
// counts as taken.
func (n *reasonNode) Prep(_ context.Context, rc *model.RunContext) (reasonPrep, error) {
	step := rc.StepIndex + 1
	rc.StepIndex = step
	rc.EmitStep(step, model.EventStepStart, map[string]any{
		"budget": rc.StepBudget,
	})
	route := n.cfg.FallbackRoute
	return reasonPrep{
		step:       step,
		budget:     rc.StepBudget,
		goal:       rc.Goal,
		prompt:     buildReasoningPrompt(rc, step),
		routeTried: rc.History.HasOperation(route.Provider, route.Operation),
	}, nil
}

func (n *reasonNode) Timeout(reasonPrep) time.Duration {
	return n.cfg.OracleTimeout
}

func (n *reasonNode) Exec(ctx context.Context, p reasonPrep) (model.Decision, error) {
	opts := []llm.CallOption{llm.WithSystemPrompt(reasoningSystemPrompt)}
	if n.cfg.ReasoningModel != "" {
		opts = append(opts, llm.WithModel(n.cfg.ReasoningModel))
	}

	raw, err := n.oracle.CompleteStructured(ctx, p.prompt, n.schema, opts...)
	if err != nil {
		if errors.Is(err, llm.ErrStructuredOutput) {
			return model.Decision{}, node.Permanent(err)
		}
		return model.Decision{}, err
	}
	d, err := model.ParseDecision(raw)
	if err != nil {
		return model.Decision{}, node.Permanent(err)
	}
	return d, nil
}

// Fallback fetches the content the goal links to when that has not been
// tried yet, and otherwise completes with what is known.
func (n *reasonNode) Fallback(_ context.Context, p reasonPrep, lastErr error) (model.Decision, error) {
	if target, ok := n.cfg.FallbackRoute.Match(p.goal); ok && !p.routeTried {
		route := n.cfg.FallbackRoute
		n.logger.Info("reasoning unavailable, fetching linked content", "step", p.step, "target", target)
		return model.Decision{
			Rationale:  "The reasoning service is unavailable; fetching the content linked in the goal directly.",
			Outcome:    model.OutcomeContinue,
			GoalStatus: "Retrieving linked content",
			Action: &model.ActionSpec{
				Provider:      route.Provider,
				Operation:     route.Operation,
				Parameters:    map[string]any{n.cfg.routeParam(): target},
				Justification: "Fallback: the goal references external content",
			},
		}, nil
	}
	return model.Decision{
		Rationale:  "The reasoning service is unavailable.",
		Outcome:    model.OutcomeComplete,
		GoalStatus: fmt.Sprintf("Reasoning failed: %v", lastErr),
	}, nil
}

func (n *reasonNode) Post(_ context.Context, rc *model.RunContext, p reasonPrep, d model.Decision) (model.Outcome, error) {
	rc.StepIndex = p.step

	forced := false
	if p.budget > 0 && p.step >= p.budget {
		forced = d.Outcome != model.OutcomeComplete
		status := fmt.Sprintf("Reached maximum %d steps", p.budget)
		if d.GoalStatus != "" {
			status += ": " + d.GoalStatus
		}
		d.Outcome = model.OutcomeComplete
		d.GoalStatus = status
	}

	rc.Pending.Clear()
	rc.GoalStatus = d.GoalStatus

	switch d.Outcome {
	case model.OutcomeContinue:
		action := *d.Action
		action.Parameters = maps.Clone(action.Parameters)
		if action.Parameters == nil {
			action.Parameters = map[string]any{}
		}
		if action.Justification == "" {
			action.Justification = d.Rationale
		}
		rc.Pending.Action = &action
	case model.OutcomeLLMProcessing:
		rc.Pending.Processing = &model.ProcessingRequest{
			Task:      d.ProcessingTask,
			Prompt:    d.ProcessingPrompt,
			Ref:       resolveUserRequest(rc, p.step, d.InputHistoryRef),
			Rationale: d.Rationale,
		}
	case model.OutcomeProcessImage:
		req := model.MediaRequest{Prompt: d.MediaPrompt, Rationale: d.Rationale}
		if d.MediaConfig != nil {
			req.Config = *d.MediaConfig
		}
		rc.Pending.Media = &req
	case model.OutcomeGenerateSpeech:
		req := model.SpeechRequest{Text: d.SpeechText, Rationale: d.Rationale}
		if d.SpeechConfig != nil {
			req.Config = *d.SpeechConfig
		}
		rc.Pending.Speech = &req
	}

	payload := map[string]any{
		"outcome":     string(d.Outcome),
		"rationale":   d.Rationale,
		"goal_status": d.GoalStatus,
	}
	if forced {
		payload["forced"] = true
	}
	if a := rc.Pending.Action; a != nil {
		payload["provider"] = a.Provider
		payload["operation"] = a.Operation
	}
	rc.Emit(model.EventReasoningComplete, payload)
	return d.Outcome, nil
}

// resolveUserRequest replaces the user_request sentinel in ref with the id
// of a history entry holding the goal text, recording that entry first if
// the run has none yet.
func resolveUserRequest(rc *model.RunContext, step int, ref string) string {
	ids := model.SplitRefs(ref)
	found := false
	for _, id := range ids {
		if id == model.UserRequestRef {
			found = true
			break
		}
	}
	if !found {
		return ref
	}

	userID := ""
	for _, e := range rc.History {
		if e.StepKind == model.StepUserInput {
			userID = e.HistoryID
			break
		}
	}
	if userID == "" {
		userID = model.NewHistoryID(model.PrefixUser, step)
		rc.History.Append(model.HistoryEntry{
			StepIndex:     step,
			StepKind:      model.StepUserInput,
			ProviderName:  "user",
			OperationName: "request",
			ResultText:    rc.Goal,
			Success:       true,
			HistoryID:     userID,
		})
	}

	for i, id := range ids {
		if id == model.UserRequestRef {
			ids[i] = userID
		}
	}
	return strings.Join(ids, ",")
}
