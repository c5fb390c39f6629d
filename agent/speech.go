package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richinex/strand/media"
	"github.com/richinex/strand/model"
	"github.com/richinex/strand/storage"
)

type speechPrep struct {
	req   model.SpeechRequest
	step  int
	runID string
}

// speechNode synthesizes speech and stores the audio.
type speechNode struct {
	speech media.SpeechSynthesizer
	store  storage.AssetStore
	enhancer
}

func (n *speechNode) Prep(_ context.Context, rc *model.RunContext) (speechPrep, error) {
	if rc.Pending.Speech == nil {
		return speechPrep{}, fmt.Errorf("%w: speech", ErrNothingStaged)
	}
	req := *rc.Pending.Speech
	rc.Emit(model.EventActionStart, map[string]any{
		"kind":  "generate_speech",
		"voice": req.Config.Voice,
		"chars": len(req.Text),
	})
	return speechPrep{req: req, step: rc.StepIndex, runID: rc.RunID}, nil
}

func (n *speechNode) Timeout(speechPrep) time.Duration {
	return n.cfg.MediaTimeout
}

func (n *speechNode) Exec(ctx context.Context, p speechPrep) (generated, error) {
	if n.speech == nil {
		return generated{prompt: p.req.Text, err: ErrNoGenerator}, nil
	}
	text, err := n.enhance(ctx, "speech", p.req.Text)
	if err != nil {
		return generated{}, err
	}

	asset, err := n.speech.Synthesize(ctx, text, p.req.Config)
	if errors.Is(err, media.ErrNoAssets) || (err == nil && len(asset.Data) == 0) {
		reason := media.ErrNoAssets.Error()
		if err != nil {
			reason = err.Error()
		}
		return generated{prompt: text, provider: n.speech.Name(), empty: true, reason: reason}, nil
	}
	if err != nil {
		return generated{}, err
	}

	asset.RunID = p.runID
	ref, err := n.store.Save(ctx, asset)
	if err != nil {
		return generated{}, fmt.Errorf("save audio: %w", err)
	}
	return generated{refs: []string{ref}, prompt: text, provider: n.speech.Name()}, nil
}

func (n *speechNode) Fallback(_ context.Context, p speechPrep, lastErr error) (generated, error) {
	return generated{prompt: p.req.Text, err: lastErr}, nil
}

func (n *speechNode) Post(_ context.Context, rc *model.RunContext, p speechPrep, res generated) (model.Outcome, error) {
	rc.Pending.Speech = nil
	return recordGenerated(rc, p.step, generatedStep{
		kind:      "speech",
		prefix:    model.PrefixSpeech,
		operation: "generate_speech",
		request:   p.req.Text,
		rationale: p.req.Rationale,
	}, res), nil
}
