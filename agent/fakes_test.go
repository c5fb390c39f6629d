package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/richinex/strand/llm"
	"github.com/richinex/strand/model"
	"github.com/richinex/strand/node"
	"github.com/richinex/strand/tools"
)

// fakeOracle answers from scripted functions. call counts start at 1.
type fakeOracle struct {
	mu       sync.Mutex
	decide   func(call int, prompt string) (string, error)
	complete func(call int, prompt string) (string, error)
	// hangDecide and hangComplete name a call that blocks until its
	// context is done.
	hangDecide   int
	hangComplete int

	structuredCalls int
	completeCalls   int
	completePrompts []string
}

func (f *fakeOracle) CompleteStructured(ctx context.Context, prompt string, _ *llm.Schema, _ ...llm.CallOption) (json.RawMessage, error) {
	f.mu.Lock()
	f.structuredCalls++
	n := f.structuredCalls
	f.mu.Unlock()

	if n == f.hangDecide {
		<-ctx.Done()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := f.decide(n, prompt)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (f *fakeOracle) Complete(ctx context.Context, prompt string, _ ...llm.CallOption) (string, error) {
	f.mu.Lock()
	f.completeCalls++
	n := f.completeCalls
	f.completePrompts = append(f.completePrompts, prompt)
	f.mu.Unlock()

	if n == f.hangComplete {
		<-ctx.Done()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.complete == nil {
		return "summary", nil
	}
	return f.complete(n, prompt)
}

// fakeTools is a provider with a fixed catalogue.
type fakeTools struct {
	mu        sync.Mutex
	catalogue model.Catalogue
	invoke    func(provider, operation string, params map[string]any) (string, error)
	calls     []string
}

func (f *fakeTools) Capabilities(context.Context) (model.Catalogue, error) {
	return f.catalogue, nil
}

func (f *fakeTools) Invoke(ctx context.Context, provider, operation string, params map[string]any) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, provider+"."+operation)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.invoke(provider, operation, params)
}

func (f *fakeTools) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func searchTools(invoke func(provider, operation string, params map[string]any) (string, error)) *fakeTools {
	return &fakeTools{
		catalogue: model.Catalogue{
			"web": {{Name: "search", Description: "Search the web", Parameters: []model.ToolParameter{
				{Name: "query", Type: "string", Required: true},
			}}},
		},
		invoke: invoke,
	}
}

// fakeImages returns the scripted assets.
type fakeImages struct {
	assets []model.Asset
	err    error
	calls  int
}

func (f *fakeImages) Name() string { return "fake-images" }

func (f *fakeImages) Generate(context.Context, string, model.MediaConfig) ([]model.Asset, error) {
	f.calls++
	return f.assets, f.err
}

type fakeSpeech struct {
	asset model.Asset
	err   error
}

func (f *fakeSpeech) Name() string { return "fake-speech" }

func (f *fakeSpeech) Synthesize(context.Context, string, model.SpeechConfig) (model.Asset, error) {
	return f.asset, f.err
}

var _ tools.Provider = (*fakeTools)(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(context.Context, time.Duration) error { return nil }

// testEngine builds an engine with two attempts per node and no backoff.
func testEngine(t *testing.T, oracle llm.Oracle, configure func(*Builder)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Policy = node.Policy{MaxRetries: 2}
	b := NewBuilder(oracle).
		Config(cfg).
		Logger(quietLogger()).
		NodeOptions(node.WithSleep(noSleep))
	if configure != nil {
		configure(b)
	}
	e, err := b.Build()
	require.NoError(t, err)
	return e
}

func decisionJSON(t *testing.T, d model.Decision) string {
	t.Helper()
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	return string(raw)
}

func continueWith(t *testing.T, provider, operation string, params map[string]any) string {
	return decisionJSON(t, model.Decision{
		Rationale:  "need data",
		Outcome:    model.OutcomeContinue,
		GoalStatus: "gathering",
		Action:     &model.ActionSpec{Provider: provider, Operation: operation, Parameters: params},
	})
}

func completeDecision(t *testing.T) string {
	return decisionJSON(t, model.Decision{
		Rationale:  "done",
		Outcome:    model.OutcomeComplete,
		GoalStatus: "goal met",
	})
}
