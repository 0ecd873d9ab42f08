// Package orchestrator implements the planner/doer controller. A planner
// model answers every step with either TASK: or FINISH:. Each TASK is run
// to completion by a delegate before the planner is asked again; the
// delegate's answer is fed back as a system turn.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/scout/pkg/agent/compaction"
	"github.com/entrhq/scout/pkg/agent/doer"
	"github.com/entrhq/scout/pkg/agent/prompts"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/parser"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/types"
)

// DefaultMaxSteps bounds the planner loop.
const DefaultMaxSteps = 10

// noResultText is fed back when the delegate exhausted its budget without
// producing any text.
const noResultText = "The sub-agent ran out of steps before producing a result."

// Delegator executes one task and returns its result.
type Delegator interface {
	Delegate(ctx context.Context, task string) (*doer.Result, error)
}

// EventSink receives lifecycle events in order.
type EventSink interface {
	Emit(types.OrchestratorEvent) error
}

// Delegation records one TASK and what came back.
type Delegation struct {
	Step   int
	Task   string
	Result *doer.Result
}

// Outcome is the full record of one invocation.
type Outcome struct {
	Answer      string
	Steps       int
	Delegations []Delegation
}

// Message renders the outcome as an assistant transcript message: the
// parts of every delegation separated by step boundaries, then the answer.
func (o *Outcome) Message() types.Message {
	var parts []types.Part
	for _, d := range o.Delegations {
		if d.Result == nil {
			continue
		}
		for _, p := range d.Result.Parts {
			if p.Kind == types.PartText {
				continue
			}
			parts = append(parts, p.Clone())
		}
		parts = append(parts, types.NewStepBoundaryPart())
	}
	parts = append(parts, types.NewTextPart(o.Answer))
	return types.NewMessage(types.RoleAssistant, parts...)
}

// Orchestrator runs the planning loop. It is safe for concurrent use;
// each invocation keeps its own state.
type Orchestrator struct {
	planner           llm.Provider
	delegate          Delegator
	instructions      string
	maxSteps          int
	requireDelegation bool
	compactor         *compaction.Compactor
	logger            *logging.Logger
	metrics           *Metrics
	tracer            trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxSteps sets the planner step budget.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithRequireDelegation controls whether FINISH is accepted before any
// TASK has been delegated. When required, an early FINISH is a contract
// violation.
func WithRequireDelegation(v bool) Option {
	return func(o *Orchestrator) { o.requireDelegation = v }
}

// WithInstructions replaces the planner prompt.
func WithInstructions(s string) Option {
	return func(o *Orchestrator) { o.instructions = s }
}

// WithCompactor sets the compactor applied to the history before each
// planner call.
func WithCompactor(c *compaction.Compactor) Option {
	return func(o *Orchestrator) { o.compactor = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an orchestrator.
func New(planner llm.Provider, delegate Delegator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		planner:           planner,
		delegate:          delegate,
		instructions:      prompts.PlannerPrompt,
		maxSteps:          DefaultMaxSteps,
		requireDelegation: true,
		compactor:         compaction.NewCompactor(compaction.DefaultKeep, nil),
		logger:            logging.NewLogger("orchestrator"),
		tracer:            otel.Tracer("github.com/entrhq/scout/pkg/agent/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrate runs the loop and returns the final answer.
func (o *Orchestrator) Orchestrate(ctx context.Context, messages []types.Message, sink EventSink) (string, error) {
	out, err := o.Run(ctx, messages, sink)
	if err != nil {
		return "", err
	}
	return out.Answer, nil
}

// Run runs the loop and returns the full outcome. On error the outcome
// still holds the delegations made so far.
//
// The input messages are never modified. Delegations are strictly
// sequential: the planner is not called again until the delegate returns.
func (o *Orchestrator) Run(ctx context.Context, messages []types.Message, sink EventSink) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.Int("orchestrator.max_steps", o.maxSteps),
		attribute.Int("orchestrator.messages", len(messages)),
	))
	defer span.End()

	ctx = doer.ContextWithObserver(ctx, func(ev types.OrchestratorEvent) { o.emit(sink, ev) })

	out := &Outcome{}
	working := types.CloneMessages(messages)
	system := prompts.NewPromptBuilder(o.instructions).WithoutReasoning().Build()

	for step := 1; step <= o.maxSteps; step++ {
		out.Steps = step
		if err := ctx.Err(); err != nil {
			return out, o.fail(span, out, OutcomeError, err)
		}
		o.emit(sink, types.NewPlanningStartedEvent(step, o.maxSteps))

		decision, raw, err := o.plan(ctx, step, system, working)
		if err != nil {
			outcome := OutcomeError
			if errors.Is(err, types.ErrContractViolation) {
				outcome = OutcomeContractViolation
			}
			return out, o.fail(span, out, outcome, err)
		}
		o.emit(sink, types.NewDecisionMadeEvent(step, decision.Kind, decision.Text))

		if decision.Kind == types.DecisionFinish {
			if o.requireDelegation && len(out.Delegations) == 0 {
				err := &types.Error{
					Kind:    types.KindContractViolation,
					Message: "Thinker violated contract (FINISH before any TASK)",
					Detail:  raw,
				}
				return out, o.fail(span, out, OutcomeContractViolation, err)
			}
			out.Answer = decision.Text
			o.emit(sink, types.NewFinishedEvent(step, decision.Text))
			o.logger.Infof("finished after %d steps and %d delegations", step, len(out.Delegations))
			o.metrics.observeRun(OutcomeFinished, step)
			span.SetAttributes(attribute.Int("orchestrator.steps", step))
			return out, nil
		}

		o.emit(sink, types.NewDelegationStartedEvent(step, decision.Text))
		result, err := o.delegateTask(ctx, step, decision.Text)
		if err != nil {
			return out, o.fail(span, out, OutcomeError, err)
		}
		out.Delegations = append(out.Delegations, Delegation{Step: step, Task: decision.Text, Result: result})

		text := result.Text
		if text == "" {
			text = noResultText
		}
		o.emit(sink, types.NewDelegationCompletedEvent(step, decision.Text, text, result.BestEffort).
			WithMetadata("doerSteps", result.Steps))
		working = append(working, types.NewSystemMessage(prompts.SubAgentResult(text)))
	}

	return out, o.fail(span, out, OutcomeBudgetExhausted, types.NewStepBudgetExhausted("Thinker", o.maxSteps))
}

// plan asks the planner for one decision.
func (o *Orchestrator) plan(ctx context.Context, step int, system string, working []types.Message) (Decision, string, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.plan", trace.WithAttributes(attribute.Int("orchestrator.step", step)))
	defer span.End()

	history := working
	if o.compactor != nil {
		var stats compaction.Stats
		history, stats = o.compactor.Compact(working)
		o.metrics.addRedacted(stats.Redacted)
		if stats.Redacted > 0 {
			o.logger.Debugf("step %d: redacted %d tool outputs (%d -> %d tokens)", step, stats.Redacted, stats.TokensBefore, stats.TokensAfter)
		}
	} else {
		history = compaction.DropEmpty(history)
	}

	reply, err := o.planner.Complete(ctx, prompts.BuildMessages(system, llm.FromTranscript(history)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil {
			return Decision{}, "", ctx.Err()
		}
		return Decision{}, "", fmt.Errorf("planner step %d: %w", step, err)
	}

	_, content := parser.Split(reply.Content)
	decision, err := ParseDecision(content)
	if err != nil {
		o.logger.Warnf("step %d: %v", step, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "contract violation")
		return Decision{}, reply.Content, err
	}
	span.SetAttributes(attribute.String("orchestrator.decision", string(decision.Kind)))
	return decision, reply.Content, nil
}

// delegateTask runs one task. An exhausted delegate is not an error for
// the planner: whatever it produced, or a fixed note, is fed back.
func (o *Orchestrator) delegateTask(ctx context.Context, step int, task string) (*doer.Result, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.delegate", trace.WithAttributes(
		attribute.Int("orchestrator.step", step),
		attribute.String("orchestrator.task", task),
	))
	defer span.End()

	o.logger.Infof("step %d: delegating %q", step, task)
	result, err := o.delegate.Delegate(ctx, task)
	if err != nil {
		if errors.Is(err, types.ErrStepBudgetExhausted) && result != nil {
			o.logger.Warnf("step %d: %v", step, err)
			o.metrics.observeDelegation(result.Steps, true)
			return result, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("delegation at step %d: %w", step, err)
	}
	if result == nil {
		result = &doer.Result{}
	}
	o.metrics.observeDelegation(result.Steps, result.BestEffort)
	span.SetAttributes(
		attribute.Int("doer.steps", result.Steps),
		attribute.Bool("doer.best_effort", result.BestEffort),
	)
	return result, nil
}

func (o *Orchestrator) fail(span trace.Span, out *Outcome, outcome string, err error) error {
	o.metrics.observeRun(outcome, out.Steps)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.logger.Errorf("run failed after %d steps: %v", out.Steps, err)
	return err
}

func (o *Orchestrator) emit(sink EventSink, ev types.OrchestratorEvent) {
	if sink == nil {
		return
	}
	if err := sink.Emit(ev); err != nil {
		o.logger.Debugf("dropping %s event: %v", ev.Type, err)
	}
}

// TextEmitter is an EventSink that also frames the final answer.
type TextEmitter interface {
	EventSink
	FinishText(text string) error
	Fail(err error) error
}

// Stream runs the loop and closes the stream: the answer as the single
// text frame on success, or an error event and an error text frame.
func (o *Orchestrator) Stream(ctx context.Context, messages []types.Message, em TextEmitter) (*Outcome, error) {
	out, err := o.Run(ctx, messages, em)
	if err != nil {
		if ferr := em.Fail(err); ferr != nil {
			o.logger.Debugf("failed to report error: %v", ferr)
		}
		return out, err
	}
	if ferr := em.FinishText(out.Answer); ferr != nil {
		o.logger.Debugf("failed to emit answer: %v", ferr)
	}
	return out, nil
}
