// Command execution for CLI commands.
//
// Information Hiding:
// - Settings, provider and tool wiring hidden
// - MCP server lifecycle hidden
// - Output formatting hidden

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/richinex/strand/agent"
	"github.com/richinex/strand/config"
	"github.com/richinex/strand/llm"
	"github.com/richinex/strand/mcp"
	"github.com/richinex/strand/media"
	"github.com/richinex/strand/model"
	"github.com/richinex/strand/storage"
	"github.com/richinex/strand/telemetry"
	"github.com/richinex/strand/tools"
)

// Options holds CLI execution options. Empty fields keep the values from
// the environment and the config file.
type Options struct {
	Provider      string
	Budget        int
	ConfigPath    string
	MCPServers    []string
	MCPConfigPath string
	VaultDir      string
	AssetDir      string
	Verbose       bool
}

// DefaultProvider is used when neither --provider nor STRAND_PROVIDER is set.
const DefaultProvider = "openai"

// Run executes one goal and prints its result to stdout. Progress goes to
// stderr. Returns an error when the run failed.
func Run(ctx context.Context, goal string, opts Options, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, opts.Verbose)

	settings, err := LoadSettings(opts)
	if err != nil {
		return err
	}
	oracle, err := NewOracle(settings, logger)
	if err != nil {
		return err
	}
	cfg, err := agent.ConfigFromSettings(settings)
	if err != nil {
		return err
	}

	provider, closeTools, err := buildTools(ctx, settings, opts, logger)
	if err != nil {
		return err
	}
	defer closeTools()

	store, err := storage.OpenFileStore(settings.Media.AssetDir, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	images, speech := buildMedia(ctx, settings, logger)

	reg := prometheus.NewRegistry()
	engine, err := agent.NewBuilder(oracle).
		Config(cfg).
		Tools(provider).
		Images(images).
		Speech(speech).
		Store(store).
		Logger(logger).
		Metrics(telemetry.NewMetrics(reg)).
		Tracer(telemetry.NewTracer()).
		Build()
	if err != nil {
		return err
	}

	res := engine.Execute(ctx, goal, opts.Budget, agent.WithProgress(printProgress(stderr, opts.Verbose)))

	fmt.Fprintln(stdout, res.FinalResult)
	if len(res.MediaAssetRefs) > 0 {
		fmt.Fprintln(stdout, "\nGenerated files:")
		for _, ref := range res.MediaAssetRefs {
			fmt.Fprintf(stdout, "  %s\n", store.Path(ref))
		}
	}

	fmt.Fprintf(stderr, "\n--- Run Metrics ---\n")
	fmt.Fprintf(stderr, "Status: %s\n", res.Status)
	fmt.Fprintf(stderr, "Steps: %d\n", res.Steps)
	fmt.Fprintf(stderr, "Duration: %s\n", res.Duration)
	if opts.Verbose {
		printNodeStats(stderr, reg)
	}

	if res.Err != nil {
		return fmt.Errorf("run %s failed: %w", res.RunID, res.Err)
	}
	return nil
}

// ListTools prints the tool catalogue the engine would see.
func ListTools(ctx context.Context, opts Options, w io.Writer, verbose bool) error {
	logger := newLogger(io.Discard, false)
	settings, err := LoadSettings(opts)
	if err != nil {
		return err
	}
	provider, closeTools, err := buildTools(ctx, settings, opts, logger)
	if err != nil {
		return err
	}
	defer closeTools()

	cat, err := provider.Capabilities(ctx)
	if err != nil {
		return err
	}
	printCatalogue(w, cat, verbose)
	return nil
}

// PrintSchema writes the decision schema the reasoning oracle must satisfy.
func PrintSchema(w io.Writer) error {
	schema, err := agent.DecisionSchema()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, schema.Indented())
	return nil
}

// LoadSettings reads settings from the environment, overlays the config
// file and applies command-line overrides.
func LoadSettings(opts Options) (config.Settings, error) {
	providerName := opts.Provider
	if providerName == "" {
		providerName = os.Getenv("STRAND_PROVIDER")
	}
	if providerName == "" {
		providerName = DefaultProvider
	}

	settings, err := config.New(providerName)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.ConfigPath != "" {
		if err := settings.LoadFile(opts.ConfigPath); err != nil {
			return config.Settings{}, err
		}
		// An explicit flag beats the file.
		if opts.Provider != "" && config.NormalizeProvider(opts.Provider) != settings.LLM.Provider {
			modelName, err := config.ModelFor(opts.Provider)
			if err != nil {
				return config.Settings{}, err
			}
			settings.LLM.Provider = config.NormalizeProvider(opts.Provider)
			settings.LLM.Model = modelName
		}
	}

	if opts.Budget > 0 {
		settings.Engine.StepBudget = opts.Budget
	}
	if opts.VaultDir != "" {
		settings.Tools.VaultDir = opts.VaultDir
	}
	if opts.AssetDir != "" {
		settings.Media.AssetDir = opts.AssetDir
	}
	if opts.MCPConfigPath != "" {
		settings.Tools.MCPConfig = opts.MCPConfigPath
	}
	return settings, settings.Validate()
}

// Helper functions

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewOracle builds the reasoning oracle for the configured provider.
func NewOracle(settings config.Settings, logger *slog.Logger) (*llm.Client, error) {
	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}
	apiKey, err := config.APIKeyFor(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(settings.LLM.Model).
		BaseURL(settings.LLM.BaseURL).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		Oracle(apiKey, logger)
}

// buildTools registers the local tools and connects MCP servers. The
// returned func closes the servers.
func buildTools(ctx context.Context, settings config.Settings, opts Options, logger *slog.Logger) (tools.Provider, func(), error) {
	registry := tools.NewRegistry(tools.LocalProviderName, logger)

	local := []tools.Tool{
		tools.NewFetchTool(settings.Tools.FetchTimeout).WithAllowedDomains(settings.Tools.AllowedDomains),
	}
	if settings.Tools.VaultDir != "" {
		local = append(local, tools.NewVault(settings.Tools.VaultDir, 0).Tools()...)
	}
	for _, t := range local {
		if err := registry.Register(t); err != nil {
			return nil, nil, err
		}
	}

	servers, err := mcpServers(settings.Tools.MCPConfig, opts.MCPServers)
	if err != nil {
		return nil, nil, err
	}
	connected := mcp.ConnectAll(ctx, servers, logger)
	if len(connected) < len(servers.MCPServers) {
		logger.Warn("some MCP servers could not be started",
			"configured", len(servers.MCPServers), "connected", len(connected))
	}

	members := []tools.Provider{registry}
	for _, p := range connected {
		members = append(members, p)
	}
	closeAll := func() {
		for _, p := range connected {
			_ = p.Close() // Best-effort shutdown
		}
	}
	return tools.NewMulti(logger, members...), closeAll, nil
}

// mcpServers merges the config file with --mcp commands.
func mcpServers(configPath string, commands []string) (*mcp.Config, error) {
	cfg := &mcp.Config{MCPServers: map[string]mcp.ServerConfig{}}
	if configPath != "" {
		loaded, err := mcp.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load MCP config: %w", err)
		}
		cfg = loaded
	}
	for _, line := range commands {
		if _, err := cfg.AddCommand(line, tools.LocalProviderName); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// buildMedia creates the generators whose API keys are available.
func buildMedia(ctx context.Context, settings config.Settings, logger *slog.Logger) (media.ImageGenerator, media.SpeechSynthesizer) {
	var images media.ImageGenerator
	var speech media.SpeechSynthesizer

	openaiKey, _ := config.APIKeyFor("openai")
	switch settings.Media.ImageProvider {
	case "gemini":
		key, err := config.APIKeyFor("gemini")
		if err != nil {
			logger.Info("image generation disabled", "error", err)
			break
		}
		client, err := llm.NewGeminiClient(ctx, key)
		if err != nil {
			logger.Warn("image generation disabled", "error", err)
			break
		}
		images = media.NewGeminiImageGenerator(client, settings.Media.ImageModel)
	default:
		if openaiKey != "" {
			images = media.NewOpenAIImageGenerator(openaiKey, settings.Media.ImageModel)
		} else {
			logger.Info("image generation disabled", "reason", "OPENAI_API_KEY not set")
		}
	}

	if openaiKey != "" {
		speech = media.NewOpenAISpeechSynthesizer(openaiKey, settings.Media.SpeechModel, settings.Media.Voice)
	} else {
		logger.Info("speech synthesis disabled", "reason", "OPENAI_API_KEY not set")
	}
	return images, speech
}

const maxProgressLen = 200

// printProgress renders progress events as one line each.
func printProgress(w io.Writer, verbose bool) model.ProgressSink {
	return func(ev model.ProgressEvent) {
		switch ev.Kind {
		case model.EventStepStart:
			fmt.Fprintf(w, "[step %d/%v] reasoning...\n", ev.StepIndex, ev.Payload["budget"])
		case model.EventReasoningComplete:
			line := fmt.Sprintf("[step %d] %v", ev.StepIndex, ev.Payload["outcome"])
			if op, ok := ev.Payload["operation"]; ok {
				line += fmt.Sprintf(" %v.%v", ev.Payload["provider"], op)
			}
			if verbose {
				line += fmt.Sprintf(" - %v", ev.Payload["rationale"])
			}
			fmt.Fprintln(w, line)
		case model.EventActionStart:
			if verbose {
				fmt.Fprintf(w, "    running %v\n", ev.Payload["kind"])
			}
		case model.EventActionComplete:
			status := "ok"
			if ok, _ := ev.Payload["success"].(bool); !ok {
				status = "failed"
			}
			fmt.Fprintf(w, "    %s: %s\n", status, truncateString(fmt.Sprint(ev.Payload["result"]), maxProgressLen))
		case model.EventFinalResult:
			fmt.Fprintf(w, "[done] %v\n", ev.Payload["status"])
		}
	}
}

func printCatalogue(w io.Writer, cat model.Catalogue, verbose bool) {
	providers := make([]string, 0, len(cat))
	for name := range cat {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	fmt.Fprintln(w, "Available tools:")
	fmt.Fprintln(w)
	for _, name := range providers {
		fmt.Fprintf(w, "%s:\n", name)
		for _, d := range cat[name] {
			fmt.Fprintf(w, "  %s\n", d.Name)
			fmt.Fprintf(w, "    %s\n", d.Description)
			if verbose && len(d.Parameters) > 0 {
				fmt.Fprintln(w, "    Parameters:")
				for _, param := range d.Parameters {
					req := ""
					if param.Required {
						req = "*"
					}
					fmt.Fprintf(w, "      %s%s: %s - %s\n", param.Name, req, param.Type, param.Description)
				}
			}
		}
		fmt.Fprintln(w)
	}
}

// printNodeStats prints per-node run counts from the metrics registry.
func printNodeStats(w io.Writer, reg prometheus.Gatherer) {
	families, err := reg.Gather()
	if err != nil {
		return
	}
	for _, mf := range families {
		if mf.GetName() != "strand_node_runs_total" {
			continue
		}
		fmt.Fprintln(w, "Node runs:")
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			fmt.Fprintf(w, "  %-10s %-8s %d\n", labels["node"], labels["status"], int(m.GetCounter().GetValue()))
		}
	}
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
