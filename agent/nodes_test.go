package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/strand/config"
	"github.com/richinex/strand/model"
	"github.com/richinex/strand/node"
	"github.com/richinex/strand/storage"
)

func runNode[P, R any](t *testing.T, phases node.Phases[P, R], rc *model.RunContext) model.Outcome {
	t.Helper()
	n := node.New[P, R](node.KindProcess, phases, node.Policy{MaxRetries: 2},
		node.WithSleep(noSleep), node.WithLogger(quietLogger()))
	outcome, err := n.Run(context.Background(), rc)
	require.NoError(t, err)
	return outcome
}

func TestProcessNode_ResolvesPrefixMismatchedRef(t *testing.T) {
	rc := model.NewRunContext("r", "translate", 5)
	rc.StepIndex = 3
	rc.History.Append(model.HistoryEntry{
		StepIndex: 2, StepKind: model.StepContentProcessing, ProviderName: "llm",
		OperationName: "draft", ResultText: "Hello", Success: true, HistoryID: "llm-2-1700000000000",
	})
	rc.Pending.Processing = &model.ProcessingRequest{Task: "translate", Prompt: "To French", Ref: "action-2-1700000000000"}

	oracle := &fakeOracle{complete: func(int, string) (string, error) { return "Bonjour", nil }}
	outcome := runNode[processPrep, processResult](t, &processNode{oracle: oracle}, rc)

	assert.Equal(t, model.OutcomeDecide, outcome)
	assert.Nil(t, rc.Pending.Processing)
	last, ok := rc.History.Last()
	require.True(t, ok)
	assert.True(t, last.Success)
	assert.Equal(t, "Bonjour", last.ResultText)
	assert.Equal(t, 3, last.StepIndex)
	assert.Contains(t, oracle.completePrompts[0], "Hello")
}

func TestProcessNode_UnresolvedRefIsRecordedFailure(t *testing.T) {
	rc := model.NewRunContext("r", "translate", 5)
	rc.StepIndex = 1
	rc.Pending.Processing = &model.ProcessingRequest{Task: "translate", Prompt: "To French", Ref: "llm-9-42"}

	oracle := &fakeOracle{}
	outcome := runNode[processPrep, processResult](t, &processNode{oracle: oracle}, rc)

	assert.Equal(t, model.OutcomeDecide, outcome)
	assert.Equal(t, 0, oracle.completeCalls)
	last, _ := rc.History.Last()
	assert.False(t, last.Success)
	assert.Contains(t, last.ResultText, model.ErrHistoryRefNotFound.Error())
}

func TestProcessNode_OracleFailureFallsBackToFailedEntry(t *testing.T) {
	rc := model.NewRunContext("r", "goal", 5)
	rc.StepIndex = 1
	rc.History.Append(model.HistoryEntry{HistoryID: "user-1-1", ResultText: "goal", Success: true, StepKind: model.StepUserInput})
	rc.Pending.Processing = &model.ProcessingRequest{Task: "t", Prompt: "p", Ref: "user-1-1"}

	oracle := &fakeOracle{complete: func(int, string) (string, error) { return "", errors.New("overloaded") }}
	runNode[processPrep, processResult](t, &processNode{oracle: oracle}, rc)

	assert.Equal(t, 2, oracle.completeCalls)
	last, _ := rc.History.Last()
	assert.False(t, last.Success)
	assert.Contains(t, last.ResultText, "overloaded")
}

func TestNodes_FailWithoutStagedInput(t *testing.T) {
	rc := model.NewRunContext("r", "goal", 5)
	n := node.New[actPrep, string](node.KindAct, &actNode{cfg: DefaultConfig()}, node.Policy{MaxRetries: 1})
	_, err := n.Run(context.Background(), rc)
	assert.ErrorIs(t, err, ErrNothingStaged)
}

func TestReasonNode_BudgetOverrideKeepsOracleStatus(t *testing.T) {
	rc := model.NewRunContext("r", "goal", 2)
	rc.StepIndex = 1
	n := &reasonNode{cfg: DefaultConfig(), logger: quietLogger()}

	outcome, err := n.Post(context.Background(), rc, reasonPrep{step: 2, budget: 2}, model.Decision{
		Outcome:    model.OutcomeContinue,
		GoalStatus: "halfway",
		Action:     &model.ActionSpec{Provider: "web", Operation: "search"},
	})

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeComplete, outcome)
	assert.Equal(t, 2, rc.StepIndex)
	assert.Equal(t, "Reached maximum 2 steps: halfway", rc.GoalStatus)
	assert.True(t, rc.Pending.Empty())
}

func TestReasonNode_StagesCopyOfAction(t *testing.T) {
	rc := model.NewRunContext("r", "goal", 5)
	params := map[string]any{"query": "go"}
	n := &reasonNode{cfg: DefaultConfig(), logger: quietLogger()}

	_, err := n.Post(context.Background(), rc, reasonPrep{step: 1, budget: 5}, model.Decision{
		Rationale: "look it up",
		Outcome:   model.OutcomeContinue,
		Action:    &model.ActionSpec{Provider: "web", Operation: "search", Parameters: params},
	})
	require.NoError(t, err)

	params["query"] = "changed"
	require.NotNil(t, rc.Pending.Action)
	assert.Equal(t, "go", rc.Pending.Action.Parameters["query"])
	assert.Equal(t, "look it up", rc.Pending.Action.Justification)
}

func TestResolveUserRequest(t *testing.T) {
	rc := model.NewRunContext("r", "the goal", 5)

	ref := resolveUserRequest(rc, 1, "user_request")
	require.Len(t, rc.History, 1)
	user := rc.History[0]
	assert.Equal(t, model.StepUserInput, user.StepKind)
	assert.Equal(t, "the goal", user.ResultText)
	assert.Equal(t, user.HistoryID, ref)

	ref = resolveUserRequest(rc, 2, "llm-1-5, user_request")
	assert.Len(t, rc.History, 1, "user entry is reused")
	assert.Equal(t, "llm-1-5,"+user.HistoryID, ref)

	assert.Equal(t, "llm-1-5", resolveUserRequest(rc, 3, "llm-1-5"))
}

func TestFallbackSummary_IsPure(t *testing.T) {
	var h model.History
	h.Append(model.HistoryEntry{StepIndex: 1, StepKind: model.StepToolAction, ProviderName: "web", OperationName: "search", ResultText: "found it", Success: true, HistoryID: "action-1-1"})
	h.Append(model.HistoryEntry{StepIndex: 2, StepKind: model.StepToolAction, ProviderName: "web", OperationName: "fetch", ResultText: "Error: 404", HistoryID: "action-2-2"})
	h.Append(model.HistoryEntry{StepIndex: 3, StepKind: model.StepToolAction, ProviderName: "fake", OperationName: "generate_image", ResultText: "Generated", Success: true, HistoryID: "image-3-3",
		Parameters: map[string]any{"asset_refs": []string{"images/a.png"}}})

	first := fallbackSummary("find it", "done", h)
	second := fallbackSummary("find it", "done", h)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "2 succeeded, 1 failed")
	assert.Contains(t, first, "images/a.png")
	assert.Contains(t, first, "Status: done")
}

func TestSummarizeNode_FallbackOnOracleFailure(t *testing.T) {
	rc := model.NewRunContext("r", "goal", 5)
	rc.History.Append(model.HistoryEntry{ResultText: "data", Success: true, HistoryID: "action-1-1", StepKind: model.StepToolAction})
	oracle := &fakeOracle{complete: func(int, string) (string, error) { return "", errors.New("down") }}

	outcome := runNode[summarizePrep, string](t, &summarizeNode{oracle: oracle}, rc)

	assert.Equal(t, model.OutcomeNone, outcome)
	assert.Equal(t, fallbackSummary("goal", "", rc.History), rc.FinalResult)
}

func TestSummarizeNode_HungCallTimesOut(t *testing.T) {
	rc := model.NewRunContext("r", "goal", 5)
	oracle := &fakeOracle{hangComplete: 1}
	cfg := DefaultConfig()
	cfg.OracleTimeout = 20 * time.Millisecond

	outcome := runNode[summarizePrep, string](t, &summarizeNode{oracle: oracle, cfg: cfg}, rc)

	assert.Equal(t, model.OutcomeNone, outcome)
	assert.Equal(t, "summary", rc.FinalResult)
	assert.Equal(t, 2, oracle.completeCalls)
}

func TestNodes_TimeoutClasses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ToolTimeout = time.Second
	cfg.OracleTimeout = 2 * time.Second
	cfg.MediaTimeout = 3 * time.Second
	enh := enhancer{cfg: cfg}

	assert.Equal(t, time.Second, (&discoverNode{cfg: cfg}).Timeout(struct{}{}))
	assert.Equal(t, 2*time.Second, (&reasonNode{cfg: cfg}).Timeout(reasonPrep{}))
	assert.Equal(t, 2*time.Second, (&processNode{cfg: cfg}).Timeout(processPrep{}))
	assert.Equal(t, 2*time.Second, (&summarizeNode{cfg: cfg}).Timeout(summarizePrep{}))
	assert.Equal(t, 3*time.Second, (&mediaNode{enhancer: enh}).Timeout(mediaPrep{}))
	assert.Equal(t, 3*time.Second, (&speechNode{enhancer: enh}).Timeout(speechPrep{}))
}

func TestMediaNode_EnhancesPrompt(t *testing.T) {
	rc := model.NewRunContext("r", "goal", 5)
	rc.StepIndex = 1
	rc.Pending.Media = &model.MediaRequest{Prompt: "a cat"}

	cfg := DefaultConfig()
	cfg.EnhancePrompts = true
	oracle := &fakeOracle{complete: func(int, string) (string, error) { return "a tabby cat in warm light", nil }}
	images := &fakeImages{assets: []model.Asset{{Kind: model.AssetImage, Data: []byte("x"), Ext: ".png"}}}
	n := &mediaNode{images: images, store: storage.NewMemoryStore(), enhancer: enhancer{oracle: oracle, cfg: cfg, logger: quietLogger()}}

	outcome := runNode[mediaPrep, generated](t, n, rc)

	assert.Equal(t, model.OutcomeDecide, outcome)
	last, _ := rc.History.Last()
	assert.Equal(t, "a cat", last.Parameters["prompt"])
	assert.Equal(t, "a tabby cat in warm light", last.Parameters["enhanced_prompt"])
	assert.Len(t, rc.MediaAssetRefs, 1)
}

func TestConfig_ToolTimeoutClass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ToolTimeout = time.Second
	cfg.SlowToolTimeout = time.Minute

	tests := []struct {
		operation string
		want      time.Duration
	}{
		{"search", time.Second},
		{"get_transcript", time.Minute},
		{"Render_Page", time.Minute},
		{"fetch_url", time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.toolTimeout(tt.operation))
		})
	}
}

func TestFallbackRoute_Match(t *testing.T) {
	route := DefaultConfig().FallbackRoute

	got, ok := route.Match("please summarize https://youtu.be/abc123 for me")
	assert.True(t, ok)
	assert.Equal(t, "https://youtu.be/abc123", got)

	_, ok = route.Match("summarize https://example.com/post")
	assert.False(t, ok)

	_, ok = FallbackRoute{}.Match("https://youtu.be/abc123")
	assert.False(t, ok)
}

func TestConfigFromSettings(t *testing.T) {
	t.Setenv("STRAND_STEP_BUDGET", "7")
	t.Setenv("STRAND_SLOW_OPERATIONS", "slow")
	s, err := config.New("openai")
	require.NoError(t, err)

	cfg, err := ConfigFromSettings(s)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.StepBudget)
	assert.Equal(t, []string{"slow"}, cfg.SlowOperations)
	assert.Equal(t, s.Engine.MaxRetries, cfg.Policy.MaxRetries)
	assert.Equal(t, s.Engine.OracleTimeout, cfg.OracleTimeout)
	assert.Equal(t, s.Engine.MediaTimeout, cfg.MediaTimeout)
	require.NotNil(t, cfg.FallbackRoute.Pattern)

	s.Engine.FallbackRoute.Pattern = "("
	_, err = ConfigFromSettings(s)
	assert.Error(t, err)
}
