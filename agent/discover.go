package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/richinex/strand/model"
	"github.com/richinex/strand/tools"
)

// discoverNode loads the tool catalogue into the run context.
type discoverNode struct {
	tools  tools.Provider
	cfg    Config
	logger *slog.Logger
}

// Timeout bounds catalogue loading like a tool call.
func (n *discoverNode) Timeout(struct{}) time.Duration {
	return n.cfg.ToolTimeout
}

func (n *discoverNode) Prep(context.Context, *model.RunContext) (struct{}, error) {
	return struct{}{}, nil
}

func (n *discoverNode) Exec(ctx context.Context, _ struct{}) (model.Catalogue, error) {
	return n.tools.Capabilities(ctx)
}

// Fallback runs without tools; reasoning can still process, generate or complete.
func (n *discoverNode) Fallback(_ context.Context, _ struct{}, lastErr error) (model.Catalogue, error) {
	n.logger.Warn("tool discovery failed, continuing without tools", "error", lastErr)
	return model.Catalogue{}, nil
}

func (n *discoverNode) Post(_ context.Context, rc *model.RunContext, _ struct{}, cat model.Catalogue) (model.Outcome, error) {
	if cat == nil {
		cat = model.Catalogue{}
	}
	rc.Catalogue = cat
	return model.OutcomeDecide, nil
}
