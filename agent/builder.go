// Engine builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Node construction and flow wiring hidden
// - Default value application hidden

package agent

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/richinex/strand/flow"
	"github.com/richinex/strand/llm"
	"github.com/richinex/strand/media"
	"github.com/richinex/strand/model"
	"github.com/richinex/strand/node"
	"github.com/richinex/strand/storage"
	"github.com/richinex/strand/telemetry"
	"github.com/richinex/strand/tools"
)

// Builder provides fluent configuration for creating an Engine.
// Usage: agent.NewBuilder(oracle).Tools(registry).Build()
type Builder struct {
	oracle   llm.Oracle
	tools    tools.Provider
	images   media.ImageGenerator
	speech   media.SpeechSynthesizer
	store    storage.AssetStore
	cfg      Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	nodeOpts []node.Option
}

// NewBuilder starts an engine that consults oracle.
func NewBuilder(oracle llm.Oracle) *Builder {
	return &Builder{
		oracle: oracle,
		cfg:    DefaultConfig(),
	}
}

// Tools sets the tool provider. Use tools.NewMulti to combine several.
func (b *Builder) Tools(p tools.Provider) *Builder {
	b.tools = p
	return b
}

// Images sets the image generator.
func (b *Builder) Images(g media.ImageGenerator) *Builder {
	b.images = g
	return b
}

// Speech sets the speech synthesizer.
func (b *Builder) Speech(s media.SpeechSynthesizer) *Builder {
	b.speech = s
	return b
}

// Store sets where generated assets are saved.
func (b *Builder) Store(s storage.AssetStore) *Builder {
	b.store = s
	return b
}

// Config replaces the engine configuration.
func (b *Builder) Config(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// Logger sets the logger.
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Metrics records node and run metrics.
func (b *Builder) Metrics(m *telemetry.Metrics) *Builder {
	b.metrics = m
	return b
}

// Tracer opens spans for runs and nodes.
func (b *Builder) Tracer(t *telemetry.Tracer) *Builder {
	b.tracer = t
	return b
}

// NodeOptions adds options applied to every node, after the builder's own.
func (b *Builder) NodeOptions(opts ...node.Option) *Builder {
	b.nodeOpts = append(b.nodeOpts, opts...)
	return b
}

// Build wires the nodes into a flow and returns the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.oracle == nil {
		return nil, errors.New("engine requires an oracle")
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	provider := b.tools
	if provider == nil {
		provider = tools.NewRegistry("", logger)
	}
	store := b.store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	cfg := b.cfg
	if cfg.StepBudget < 1 {
		cfg.StepBudget = DefaultConfig().StepBudget
	}

	schema, err := DecisionSchema()
	if err != nil {
		return nil, err
	}

	opts := append([]node.Option{
		node.WithLogger(logger),
		node.WithMetrics(b.metrics),
		node.WithTracer(b.tracer),
	}, b.nodeOpts...)
	enh := enhancer{oracle: b.oracle, cfg: cfg, logger: logger}

	discover := node.New[struct{}, model.Catalogue](node.KindDiscover,
		&discoverNode{tools: provider, cfg: cfg, logger: logger}, cfg.Policy, opts...)
	reason := node.New[reasonPrep, model.Decision](node.KindReason,
		&reasonNode{oracle: b.oracle, schema: schema, cfg: cfg, logger: logger}, cfg.Policy, opts...)
	act := node.New[actPrep, string](node.KindAct,
		&actNode{tools: provider, cfg: cfg}, cfg.Policy, opts...)
	process := node.New[processPrep, processResult](node.KindProcess,
		&processNode{oracle: b.oracle, cfg: cfg}, cfg.Policy, opts...)
	images := node.New[mediaPrep, generated](node.KindMedia,
		&mediaNode{images: b.images, store: store, enhancer: enh}, cfg.Policy, opts...)
	speech := node.New[speechPrep, generated](node.KindSpeech,
		&speechNode{speech: b.speech, store: store, enhancer: enh}, cfg.Policy, opts...)
	summarize := node.New[summarizePrep, string](node.KindSummarize,
		&summarizeNode{oracle: b.oracle, cfg: cfg}, cfg.Policy, opts...)

	f := flow.New(discover, flow.WithLogger(logger)).
		Register(node.KindDiscover, model.OutcomeDecide, reason).
		Register(node.KindReason, model.OutcomeContinue, act).
		Register(node.KindReason, model.OutcomeLLMProcessing, process).
		Register(node.KindReason, model.OutcomeProcessImage, images).
		Register(node.KindReason, model.OutcomeGenerateSpeech, speech).
		Register(node.KindReason, model.OutcomeComplete, summarize).
		Register(node.KindAct, model.OutcomeDecide, reason).
		Register(node.KindProcess, model.OutcomeDecide, reason).
		Register(node.KindMedia, model.OutcomeDecide, reason).
		Register(node.KindSpeech, model.OutcomeDecide, reason)

	return &Engine{
		flow:    f,
		tools:   provider,
		cfg:     cfg,
		logger:  logger,
		metrics: b.metrics,
		tracer:  b.tracer,
	}, nil
}

// DecisionSchema returns the schema the reasoning oracle must satisfy.
func DecisionSchema() (*llm.Schema, error) {
	schema, err := llm.SchemaFor[model.Decision]("decision",
		"The next step toward the goal. Fields beyond rationale, outcome and goal_status depend on outcome.")
	if err != nil {
		return nil, fmt.Errorf("decision schema: %w", err)
	}
	return schema, nil
}
