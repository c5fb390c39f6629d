package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/richinex/strand/llm"
	"github.com/richinex/strand/media"
	"github.com/richinex/strand/model"
	"github.com/richinex/strand/storage"
	"github.com/richinex/strand/tools"
)

// ErrNoGenerator is recorded when a media step runs without a generator configured.
var ErrNoGenerator = errors.New("no generator configured")

// generated is the result of a media or speech attempt.
type generated struct {
	refs     []string
	prompt   string
	revised  string
	provider string
	// empty is set when the provider produced nothing, typically because
	// the request was filtered.
	empty  bool
	reason string
	err    error
}

// enhancer rewrites prompts with the oracle when enabled.
type enhancer struct {
	oracle llm.Oracle
	cfg    Config
	logger *slog.Logger
}

// enhance returns the improved prompt, or the original when enhancement
// is disabled or fails. Only cancellation is reported as an error.
func (e enhancer) enhance(ctx context.Context, kind, prompt string) (string, error) {
	if !e.cfg.EnhancePrompts || e.oracle == nil {
		return prompt, nil
	}
	opts := []llm.CallOption{llm.WithSystemPrompt(enhanceSystemPrompt)}
	if e.cfg.ProcessingModel != "" {
		opts = append(opts, llm.WithModel(e.cfg.ProcessingModel))
	}
	out, err := e.oracle.Complete(ctx, buildEnhancePrompt(kind, prompt), opts...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		e.logger.Debug("prompt enhancement failed, using original", "kind", kind, "error", err)
		return prompt, nil
	}
	if out = strings.TrimSpace(out); out == "" {
		return prompt, nil
	}
	return out, nil
}

type mediaPrep struct {
	req   model.MediaRequest
	step  int
	runID string
}

// mediaNode generates images and stores them.
type mediaNode struct {
	images media.ImageGenerator
	store  storage.AssetStore
	enhancer
}

func (n *mediaNode) Prep(_ context.Context, rc *model.RunContext) (mediaPrep, error) {
	if rc.Pending.Media == nil {
		return mediaPrep{}, fmt.Errorf("%w: media", ErrNothingStaged)
	}
	req := *rc.Pending.Media
	rc.Emit(model.EventActionStart, map[string]any{
		"kind":   "generate_image",
		"prompt": req.Prompt,
	})
	return mediaPrep{req: req, step: rc.StepIndex, runID: rc.RunID}, nil
}

func (n *mediaNode) Timeout(mediaPrep) time.Duration {
	return n.cfg.MediaTimeout
}

func (n *mediaNode) Exec(ctx context.Context, p mediaPrep) (generated, error) {
	if n.images == nil {
		return generated{prompt: p.req.Prompt, err: ErrNoGenerator}, nil
	}
	prompt, err := n.enhance(ctx, "image", p.req.Prompt)
	if err != nil {
		return generated{}, err
	}

	assets, err := n.images.Generate(ctx, prompt, p.req.Config)
	if errors.Is(err, media.ErrNoAssets) {
		return generated{prompt: prompt, provider: n.images.Name(), empty: true, reason: err.Error()}, nil
	}
	if err != nil {
		return generated{}, err
	}
	if len(assets) == 0 {
		return generated{prompt: prompt, provider: n.images.Name(), empty: true, reason: media.ErrNoAssets.Error()}, nil
	}

	res := generated{prompt: prompt, provider: n.images.Name()}
	for _, a := range assets {
		a.RunID = p.runID
		ref, err := n.store.Save(ctx, a)
		if err != nil {
			return generated{}, fmt.Errorf("save image: %w", err)
		}
		res.refs = append(res.refs, ref)
		if res.revised == "" {
			res.revised = a.RevisedPrompt
		}
	}
	return res, nil
}

func (n *mediaNode) Fallback(_ context.Context, p mediaPrep, lastErr error) (generated, error) {
	return generated{prompt: p.req.Prompt, err: lastErr}, nil
}

func (n *mediaNode) Post(_ context.Context, rc *model.RunContext, p mediaPrep, res generated) (model.Outcome, error) {
	rc.Pending.Media = nil
	return recordGenerated(rc, p.step, generatedStep{
		kind:      "image",
		prefix:    model.PrefixImage,
		operation: "generate_image",
		request:   p.req.Prompt,
		rationale: p.req.Rationale,
	}, res), nil
}

type generatedStep struct {
	kind      string
	prefix    string
	operation string
	request   string
	rationale string
}

// recordGenerated writes a media or speech result into the run context and
// picks the outcome. Producing nothing ends the run.
func recordGenerated(rc *model.RunContext, step int, s generatedStep, res generated) model.Outcome {
	provider := res.provider
	if provider == "" {
		provider = "media"
	}
	params := map[string]any{"prompt": s.request}
	if res.prompt != "" && res.prompt != s.request {
		params["enhanced_prompt"] = res.prompt
	}
	if res.revised != "" {
		params["revised_prompt"] = res.revised
	}

	var text string
	success := false
	switch {
	case res.empty:
		text = fmt.Sprintf("%sno %s was generated: %s", tools.ErrorPrefix, s.kind, res.reason)
	case res.err != nil:
		text = tools.ErrorPrefix + res.err.Error()
	default:
		success = true
		params["asset_refs"] = append([]string(nil), res.refs...)
		text = fmt.Sprintf("Generated %d %s file(s): %s", len(res.refs), s.kind, strings.Join(res.refs, ", "))
	}

	id := model.NewHistoryID(s.prefix, step)
	rc.History.Append(model.HistoryEntry{
		StepIndex:     step,
		StepKind:      model.StepToolAction,
		ProviderName:  provider,
		OperationName: s.operation,
		Parameters:    params,
		ResultText:    text,
		Justification: s.rationale,
		Success:       success,
		HistoryID:     id,
	})
	if success {
		rc.MediaAssetRefs = append(rc.MediaAssetRefs, res.refs...)
	}

	rc.Emit(model.EventActionComplete, map[string]any{
		"kind":       s.operation,
		"history_id": id,
		"success":    success,
		"asset_refs": res.refs,
		"result":     truncate(text, 500),
	})

	if res.empty {
		rc.GoalStatus = fmt.Sprintf("No %s generated", s.kind)
		rc.FinalResult = fmt.Sprintf("No %s was generated for %q (%s). The request may have been blocked by content filtering.",
			s.kind, s.request, res.reason)
		return model.OutcomeNone
	}
	return model.OutcomeDecide
}
