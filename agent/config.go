// Engine configuration types.
//
// Information Hiding:
// - Translation from application settings hidden
// - Default values hidden
// - Timeout class selection hidden

package agent

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/richinex/strand/config"
	"github.com/richinex/strand/node"
)

// Config holds engine configuration.
type Config struct {
	// StepBudget is used when Execute is called with a non-positive budget.
	StepBudget int

	// Policy is the retry policy applied to every node.
	Policy node.Policy

	// ToolTimeout bounds each tool attempt. Operations whose name contains
	// one of SlowOperations get SlowToolTimeout instead.
	ToolTimeout     time.Duration
	SlowToolTimeout time.Duration
	SlowOperations  []string

	// OracleTimeout bounds each reasoning, processing and summary attempt.
	// MediaTimeout bounds each media or speech attempt, prompt enhancement
	// included. Zero leaves attempts unbounded.
	OracleTimeout time.Duration
	MediaTimeout  time.Duration

	// ReasoningModel and ProcessingModel override the oracle's model for
	// reasoning and for processing, summary and prompt enhancement calls.
	ReasoningModel  string
	ProcessingModel string

	// EnhancePrompts asks the oracle to improve media and speech prompts
	// before generation.
	EnhancePrompts bool

	// FallbackRoute is the tool call reasoning falls back to when the
	// oracle is unavailable. A nil Pattern disables it.
	FallbackRoute FallbackRoute
}

// FallbackRoute names the operation that fetches content the goal links to.
type FallbackRoute struct {
	Pattern   *regexp.Regexp
	Provider  string
	Operation string
	Param     string
}

// Match returns the first piece of the goal the route recognizes.
func (r FallbackRoute) Match(goal string) (string, bool) {
	if r.Pattern == nil || r.Provider == "" || r.Operation == "" {
		return "", false
	}
	m := r.Pattern.FindString(goal)
	return m, m != ""
}

// DefaultConfig returns the engine defaults, matching config.New.
func DefaultConfig() Config {
	return Config{
		StepBudget:      10,
		Policy:          node.DefaultPolicy(),
		ToolTimeout:     60 * time.Second,
		SlowToolTimeout: 5 * time.Minute,
		SlowOperations:  []string{"transcript", "video", "audio", "render", "crawl"},
		OracleTimeout:   2 * time.Minute,
		MediaTimeout:    5 * time.Minute,
		FallbackRoute: FallbackRoute{
			Pattern:   regexp.MustCompile(config.DefaultVideoPattern),
			Provider:  "local",
			Operation: "fetch_url",
			Param:     "url",
		},
	}
}

// ConfigFromSettings converts application settings into an engine Config.
func ConfigFromSettings(s config.Settings) (Config, error) {
	e := s.Engine
	cfg := Config{
		StepBudget: e.StepBudget,
		Policy: node.Policy{
			MaxRetries: e.MaxRetries,
			BaseDelay:  e.BaseDelay,
			MaxDelay:   e.MaxDelay,
			Jitter:     e.Jitter,
		},
		ToolTimeout:     e.ToolTimeout,
		SlowToolTimeout: e.SlowToolTimeout,
		SlowOperations:  e.SlowOperations,
		OracleTimeout:   e.OracleTimeout,
		MediaTimeout:    e.MediaTimeout,
		ReasoningModel:  e.ReasoningModel,
		ProcessingModel: e.ProcessingModel,
		EnhancePrompts:  e.EnhancePrompts,
		FallbackRoute: FallbackRoute{
			Provider:  e.FallbackRoute.Provider,
			Operation: e.FallbackRoute.Operation,
			Param:     e.FallbackRoute.Param,
		},
	}
	if e.FallbackRoute.Pattern != "" {
		re, err := regexp.Compile(e.FallbackRoute.Pattern)
		if err != nil {
			return Config{}, fmt.Errorf("invalid fallback pattern: %w", err)
		}
		cfg.FallbackRoute.Pattern = re
	}
	return cfg, nil
}

// toolTimeout picks the timeout class for an operation.
func (c Config) toolTimeout(operation string) time.Duration {
	op := strings.ToLower(operation)
	for _, slow := range c.SlowOperations {
		if slow != "" && strings.Contains(op, strings.ToLower(slow)) {
			return c.SlowToolTimeout
		}
	}
	return c.ToolTimeout
}

func (c Config) routeParam() string {
	if c.FallbackRoute.Param == "" {
		return "url"
	}
	return c.FallbackRoute.Param
}
