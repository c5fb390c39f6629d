// Package node implements the retrying unit of work the engine is built from.
//
// A node runs in three phases:
//   - Prep reads what it needs from the run context, once.
//   - Exec does the fallible work and may be attempted several times. It must
//     not touch the run context.
//   - Post writes results back into the run context, at most once, and
//     returns the outcome that selects the next node.
//
// When every Exec attempt fails, an optional Fallback produces a substitute
// result and Post runs as if Exec had succeeded.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/richinex/strand/model"
	"github.com/richinex/strand/telemetry"
)

// Kind identifies a node variant. The transition table is keyed by it.
type Kind string

const (
	KindDiscover  Kind = "discover"
	KindReason    Kind = "reason"
	KindAct       Kind = "act"
	KindProcess   Kind = "process"
	KindMedia     Kind = "media"
	KindSpeech    Kind = "speech"
	KindSummarize Kind = "summarize"
)

// Phases is the three-phase contract a node variant implements.
type Phases[P, R any] interface {
	Prep(ctx context.Context, rc *model.RunContext) (P, error)
	Exec(ctx context.Context, prep P) (R, error)
	Post(ctx context.Context, rc *model.RunContext, prep P, res R) (model.Outcome, error)
}

// Fallback is implemented by phases that can substitute a result once all
// Exec attempts have failed. lastErr is the error of the final attempt.
type Fallback[P, R any] interface {
	Fallback(ctx context.Context, prep P, lastErr error) (R, error)
}

// Timeouter is implemented by phases whose attempts are bounded by a
// per-attempt deadline that depends on the prepared input.
type Timeouter[P any] interface {
	Timeout(prep P) time.Duration
}

// Runnable is the non-generic view of a node used by the flow.
type Runnable interface {
	Kind() Kind
	Run(ctx context.Context, rc *model.RunContext) (model.Outcome, error)
}

// Option configures a Node.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	sleep   func(context.Context, time.Duration) error
	jitter  func() float64
}

// WithLogger sets the logger for attempt and fallback records.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records attempts and runs.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer opens a span per run.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *options) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithJitterSource replaces the source of jitter samples in [0,1].
func WithJitterSource(fn func() float64) Option {
	return func(o *options) {
		if fn != nil {
			o.jitter = fn
		}
	}
}

// Node runs a Phases implementation with retry, timeout and fallback.
type Node[P, R any] struct {
	kind     Kind
	phases   Phases[P, R]
	fallback Fallback[P, R]
	timeout  Timeouter[P]
	policy   Policy
	opts     options
}

// New wraps phases into a runnable node. Fallback and Timeouter are
// detected on phases.
func New[P, R any](kind Kind, phases Phases[P, R], policy Policy, opts ...Option) *Node[P, R] {
	o := options{
		logger: slog.Default(),
		sleep:  sleepWithContext,
		jitter: jitterUnit,
	}
	for _, opt := range opts {
		opt(&o)
	}

	n := &Node[P, R]{
		kind:   kind,
		phases: phases,
		policy: policy,
		opts:   o,
	}
	if fb, ok := phases.(Fallback[P, R]); ok {
		n.fallback = fb
	}
	if to, ok := phases.(Timeouter[P]); ok {
		n.timeout = to
	}
	return n
}

// Kind returns the node variant.
func (n *Node[P, R]) Kind() Kind {
	return n.kind
}

// Run executes Prep, Exec with retries, the fallback if needed, and Post.
func (n *Node[P, R]) Run(ctx context.Context, rc *model.RunContext) (model.Outcome, error) {
	start := time.Now()
	ctx, span := n.opts.tracer.Start(ctx, "node."+string(n.kind),
		attribute.String("node.kind", string(n.kind)),
		attribute.String("run.id", rc.RunID),
		attribute.Int("run.step", rc.StepIndex),
	)
	defer span.End()

	status := "error"
	defer func() {
		n.opts.metrics.NodeFinished(string(n.kind), status, time.Since(start))
	}()

	fail := func(err error) (model.Outcome, error) {
		n.opts.tracer.RecordError(span, err)
		return model.OutcomeNone, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	prep, err := n.phases.Prep(ctx, rc)
	if err != nil {
		return fail(fmt.Errorf("%s prep: %w", n.kind, err))
	}

	res, err := n.execWithRetry(ctx, rc, prep)
	usedFallback := false
	if err != nil {
		if !n.canFallBack(ctx, err) {
			return fail(fmt.Errorf("%s exec: %w", n.kind, err))
		}
		n.opts.logger.Warn("node falling back",
			"run_id", rc.RunID, "node", string(n.kind), "step", rc.StepIndex, "error", err)
		res, err = n.fallback.Fallback(ctx, prep, errors.Unwrap(err))
		if err != nil {
			return fail(fmt.Errorf("%s fallback: %w", n.kind, err))
		}
		usedFallback = true
	}

	outcome, err := n.phases.Post(ctx, rc, prep, res)
	if err != nil {
		return fail(fmt.Errorf("%s post: %w", n.kind, err))
	}

	status = "ok"
	if usedFallback {
		status = "fallback"
	}
	span.SetAttributes(attribute.String("node.outcome", string(outcome)))
	return outcome, nil
}

func (n *Node[P, R]) canFallBack(ctx context.Context, err error) bool {
	if n.fallback == nil || ctx.Err() != nil {
		return false
	}
	if IsPermanent(err) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// attemptsError wraps the last attempt's error with the attempt count.
type attemptsError struct {
	attempts int
	err      error
}

func (e *attemptsError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.attempts, e.err)
}

func (e *attemptsError) Unwrap() error {
	return e.err
}

func (n *Node[P, R]) execWithRetry(ctx context.Context, rc *model.RunContext, prep P) (R, error) {
	var zero R
	var lastErr error
	maxAttempts := n.policy.attempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := n.attempt(ctx, prep)
		if err == nil {
			n.opts.metrics.NodeAttempt(string(n.kind), "ok")
			return res, nil
		}
		lastErr = err

		attemptStatus := "error"
		if errors.Is(err, ErrTimeout) {
			attemptStatus = "timeout"
		}
		n.opts.metrics.NodeAttempt(string(n.kind), attemptStatus)

		if IsPermanent(err) {
			return zero, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if attempt == maxAttempts {
			break
		}

		delay := Delay(attempt, n.policy, n.opts.jitter())
		n.opts.logger.Debug("node attempt failed, retrying",
			"run_id", rc.RunID, "node", string(n.kind), "attempt", attempt,
			"max_attempts", maxAttempts, "delay", delay, "error", err)
		if err := n.opts.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &attemptsError{attempts: maxAttempts, err: lastErr}
}

func (n *Node[P, R]) attempt(ctx context.Context, prep P) (R, error) {
	var d time.Duration
	if n.timeout != nil {
		d = n.timeout.Timeout(prep)
	}
	return Race(ctx, d, func(ctx context.Context) (R, error) {
		return n.phases.Exec(ctx, prep)
	})
}
