// Package doer runs the bounded tool-using loop that executes one delegated
// task. The executor never plans beyond the task it is given and never
// escalates: when the step budget runs out it returns what it has and marks
// the result as best effort.
package doer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/scout/pkg/agent/prompts"
	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/parser"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/types"
)

// DefaultMaxSteps bounds a run when the caller passes zero.
const DefaultMaxSteps = 10

// ExhaustMaxSteps is the ExhaustReason of a run that used its whole budget.
const ExhaustMaxSteps = "max_steps"

// Result is the outcome of one run.
type Result struct {
	// Text is the final answer, or the last non-empty text when BestEffort.
	Text string
	// Parts is the run transcript. Every tool-call part in it is terminal.
	Parts         []types.Part
	Steps         int
	BestEffort    bool
	ExhaustReason string
	ToolCalls     int
	ToolFailures  int
}

// Request is the general form of a run.
type Request struct {
	// Instructions replaces the executor's role prompt when set.
	Instructions string
	// SessionContext is appended to the system prompt, e.g. the test brief.
	SessionContext string
	History        []*llm.Message
	Tools          *tools.ToolSet
	MaxSteps       int
}

// Executor runs tasks against one provider.
type Executor struct {
	provider     llm.Provider
	instructions string
	maxSteps     int
	logger       *logging.Logger
	tracer       trace.Tracer
	observer     func(types.OrchestratorEvent)
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithInstructions replaces the default role prompt.
func WithInstructions(s string) Option {
	return func(e *Executor) { e.instructions = s }
}

// WithMaxSteps sets the budget used when a call passes zero.
func WithMaxSteps(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithTracer sets the tracer used for run spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithObserver receives tool-call and tool-result events as they happen.
func WithObserver(fn func(types.OrchestratorEvent)) Option {
	return func(e *Executor) { e.observer = fn }
}

// NewExecutor creates an executor.
func NewExecutor(provider llm.Provider, opts ...Option) *Executor {
	e := &Executor{
		provider:     provider,
		instructions: prompts.DoerPrompt,
		maxSteps:     DefaultMaxSteps,
		logger:       logging.NewLogger("doer"),
		tracer:       otel.Tracer("github.com/entrhq/scout/pkg/agent/doer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes a single task with a fresh history.
func (e *Executor) Run(ctx context.Context, task string, ts *tools.ToolSet, maxSteps int) (*Result, error) {
	return e.RunConversation(ctx, Request{
		History:  []*llm.Message{llm.NewUserMessage(task)},
		Tools:    ts,
		MaxSteps: maxSteps,
	})
}

// RunConversation executes the loop over an existing history.
//
// LLM transport failures and context cancellation end the run with an
// error. Tool failures never do: they are fed back to the model as the
// next user turn. When the budget is exhausted the result is marked best
// effort; if no text was produced at all a StepBudgetExhausted error is
// returned alongside the result.
func (e *Executor) RunConversation(ctx context.Context, req Request) (*Result, error) {
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = e.maxSteps
	}
	ts := req.Tools
	if ts == nil {
		ts = tools.NewToolSet()
	}
	instructions := req.Instructions
	if instructions == "" {
		instructions = e.instructions
	}

	ctx, span := e.tracer.Start(ctx, "doer.run", trace.WithAttributes(
		attribute.Int("doer.max_steps", maxSteps),
		attribute.Int("doer.tools", ts.Len()),
	))
	defer span.End()

	system := prompts.NewPromptBuilder(instructions).
		WithTools(ts.List()).
		WithSessionContext(req.SessionContext).
		Build()

	history := make([]*llm.Message, 0, len(req.History)+2*maxSteps)
	history = append(history, req.History...)

	res := &Result{}
	var lastText string

	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return e.finish(span, res, err)
		}
		res.Steps = step
		if step > 1 {
			res.Parts = append(res.Parts, types.NewStepBoundaryPart())
		}

		reply, err := e.provider.Complete(ctx, prompts.BuildMessages(system, history))
		if err != nil {
			if ctx.Err() != nil {
				return e.finish(span, res, ctx.Err())
			}
			return e.finish(span, res, fmt.Errorf("doer step %d: %w", step, err))
		}
		history = append(history, llm.NewAssistantMessage(reply.Content))

		reasoning, content := parser.Split(reply.Content)
		if reasoning != "" {
			res.Parts = append(res.Parts, types.NewReasoningPart(reasoning))
		}

		narration, call, _, parseErr := tools.ExtractThinkingAndToolCall(content)
		if narration != "" {
			lastText = narration
			res.Parts = append(res.Parts, types.NewTextPart(narration))
		}

		if parseErr != nil {
			e.logger.Warnf("step %d: malformed tool call: %v", step, parseErr)
			history = append(history, llm.NewUserMessage(malformedCallMessage(parseErr)))
			continue
		}
		if call == nil {
			res.Text = narration
			e.logger.Debugf("completed in %d steps", step)
			return e.finish(span, res, nil)
		}

		output, done := e.executeTool(ctx, ts, call, res)
		if done {
			res.Text = output
			return e.finish(span, res, nil)
		}
		if ctx.Err() != nil {
			return e.finish(span, res, ctx.Err())
		}
		if output != "" {
			history = append(history, llm.NewUserMessage(output))
		}
	}

	res.BestEffort = true
	res.ExhaustReason = ExhaustMaxSteps
	res.Text = lastText
	e.logger.Warnf("step budget of %d exhausted after %d tool calls (%d failed)", maxSteps, res.ToolCalls, res.ToolFailures)
	if strings.TrimSpace(lastText) == "" {
		return e.finish(span, res, types.NewStepBudgetExhausted("doer", maxSteps))
	}
	return e.finish(span, res, nil)
}

// executeTool runs one call, records its part and returns the message to
// feed back. done is true when a loop-breaking tool succeeded; the returned
// string is then the final answer.
func (e *Executor) executeTool(ctx context.Context, ts *tools.ToolSet, call *tools.ToolCall, res *Result) (string, bool) {
	input := call.Input()
	if input == nil {
		input = map[string]interface{}{}
	}
	part := types.NewToolCallPart(uuid.NewString(), call.ToolName, input)
	e.emit(ctx, types.NewToolCallEvent(call.ToolName, input))
	res.ToolCalls++

	outcome := ts.Execute(ctx, call)
	e.emit(ctx, types.NewToolResultEvent(call.ToolName, outcome.Success))

	if !outcome.Success {
		res.ToolFailures++
		res.Parts = append(res.Parts, part.WithError(outcome.Err.Error()))
		e.logger.Infof("%v", types.NewToolExecutionFailure(call.ToolName, outcome.Err))
		return prompts.ToolFailureMessage(call.ToolName, outcome.Err), false
	}

	res.Parts = append(res.Parts, part.WithOutput(outcome.Output))
	e.logger.Debugf("tool %s succeeded (%d bytes)", call.ToolName, len(outcome.Output))

	if t, ok := ts.Get(call.ToolName); ok && t.IsLoopBreaking() {
		return outcome.Output, true
	}
	return prompts.ToolResultMessage(call.ToolName, outcome.Output), false
}

func (e *Executor) finish(span trace.Span, res *Result, err error) (*Result, error) {
	span.SetAttributes(
		attribute.Int("doer.steps", res.Steps),
		attribute.Int("doer.tool_calls", res.ToolCalls),
		attribute.Int("doer.tool_failures", res.ToolFailures),
		attribute.Bool("doer.best_effort", res.BestEffort),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if res.Text != "" {
		res.Parts = append(res.Parts, finalTextPart(res)...)
	}
	return res, err
}

// finalTextPart appends the answer as a text part unless the last text part
// already carries it.
func finalTextPart(res *Result) []types.Part {
	for i := len(res.Parts) - 1; i >= 0; i-- {
		p := res.Parts[i]
		if p.Kind == types.PartText {
			if p.Text == res.Text {
				return nil
			}
			break
		}
	}
	return []types.Part{types.NewTextPart(res.Text)}
}

type observerKey struct{}

// ContextWithObserver attaches a per-run event observer. It takes
// precedence over WithObserver, so a shared executor can report to the
// stream of the request that delegated to it.
func ContextWithObserver(ctx context.Context, fn func(types.OrchestratorEvent)) context.Context {
	return context.WithValue(ctx, observerKey{}, fn)
}

func (e *Executor) emit(ctx context.Context, ev types.OrchestratorEvent) {
	if fn, ok := ctx.Value(observerKey{}).(func(types.OrchestratorEvent)); ok && fn != nil {
		fn(ev)
		return
	}
	if e.observer != nil {
		e.observer(ev)
	}
}

func malformedCallMessage(err error) string {
	return fmt.Sprintf("Your tool call could not be parsed: %v\n\nUse the exact XML format with <tool_name> and <arguments>, or reply with plain text if you are done.", err)
}

// Bound binds an executor to a tool set and budget so it can serve as the
// orchestrator's delegate.
type Bound struct {
	Executor *Executor
	Tools    *tools.ToolSet
	MaxSteps int
}

// Delegate runs task with the bound tools.
func (b *Bound) Delegate(ctx context.Context, task string) (*Result, error) {
	return b.Executor.Run(ctx, task, b.Tools, b.MaxSteps)
}
