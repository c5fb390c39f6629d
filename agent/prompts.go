package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/richinex/strand/model"
	"github.com/richinex/strand/tools"
)

// maxResultChars bounds how much of one history result is shown to the oracle.
const maxResultChars = 4000

const reasoningSystemPrompt = `You are the planning step of a task engine. Each turn you choose exactly one next step toward the user's goal.

Outcomes:
- "continue": call one tool. Set action.provider, action.operation and action.parameters using the catalogue below.
- "llm_processing": transform earlier results with the language model. Set processing_task, processing_prompt and input_history_ref (one or more history ids, comma separated, or "user_request" to work on the goal text itself).
- "process_image": generate an image. Set media_prompt and optionally media_config.
- "generate_speech": synthesize speech. Set speech_text and optionally speech_config.
- "complete": the goal is met or cannot progress further.

Always set rationale and goal_status. Prefer results already in the history over repeating a tool call. When a step failed, adapt instead of repeating it unchanged.`

const processingSystemPrompt = `You transform content for a task engine. Follow the instructions exactly and answer with the transformed content only.`

const summarySystemPrompt = `You write the final answer of a task engine run. Answer the user's goal directly using the results gathered. Mention generated files by their paths when there are any. Be concise.`

const enhanceSystemPrompt = `You improve prompts for generative models. Answer with the improved prompt only.`

// buildReasoningPrompt renders the goal, the catalogue and the history.
func buildReasoningPrompt(rc *model.RunContext, step int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GOAL:\n%s\n\n", rc.Goal)
	fmt.Fprintf(&b, "STEP: %d of %d", step, rc.StepBudget)
	if remaining := rc.StepBudget - step; remaining <= 1 {
		b.WriteString(" (last step: choose complete unless one final action is essential)")
	}
	b.WriteString("\n\n")

	b.WriteString("AVAILABLE TOOLS:\n")
	b.WriteString(describeCatalogue(rc.Catalogue))
	b.WriteString("\n\n")

	b.WriteString("HISTORY:\n")
	b.WriteString(describeHistory(rc.History))
	return b.String()
}

func describeCatalogue(cat model.Catalogue) string {
	if len(cat) == 0 {
		return "(no tools available)"
	}
	providers := make([]string, 0, len(cat))
	for name := range cat {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	var sections []string
	for _, name := range providers {
		var descs []string
		for _, d := range cat[name] {
			descs = append(descs, tools.DescribeTool(d))
		}
		sections = append(sections, fmt.Sprintf("Provider: %s\n%s", name, strings.Join(descs, "\n\n")))
	}
	return strings.Join(sections, "\n\n")
}

func describeHistory(h model.History) string {
	if len(h) == 0 {
		return "(nothing has been done yet)"
	}
	var b strings.Builder
	for _, e := range h {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "[%s] step %d %s %s.%s (%s)\n", e.HistoryID, e.StepIndex, e.StepKind, e.ProviderName, e.OperationName, status)
		if len(e.Parameters) > 0 {
			if params, err := json.Marshal(e.Parameters); err == nil {
				fmt.Fprintf(&b, "parameters: %s\n", truncate(string(params), 500))
			}
		}
		fmt.Fprintf(&b, "result: %s\n\n", truncate(e.ResultText, maxResultChars))
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildProcessingPrompt joins the referenced results with the instructions.
func buildProcessingPrompt(req model.ProcessingRequest, inputs []model.HistoryEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK: %s\n\nINSTRUCTIONS:\n%s\n\n", req.Task, req.Prompt)
	for _, e := range inputs {
		fmt.Fprintf(&b, "CONTENT [%s]:\n%s\n\n", e.HistoryID, e.ResultText)
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildSummaryPrompt(goal, goalStatus string, h model.History) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GOAL:\n%s\n\n", goal)
	if goalStatus != "" {
		fmt.Fprintf(&b, "STATUS: %s\n\n", goalStatus)
	}
	b.WriteString("RESULTS:\n")
	b.WriteString(describeHistory(h))
	return b.String()
}

func buildEnhancePrompt(kind, prompt string) string {
	switch kind {
	case "speech":
		return "Rewrite this text so it reads naturally when spoken aloud. Keep its meaning and language:\n\n" + prompt
	default:
		return "Rewrite this image prompt to be vivid and specific about subject, composition, lighting and style. Keep the original intent:\n\n" + prompt
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("... [%d more characters]", len(s)-n)
}
