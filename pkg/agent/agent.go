// Package agent provides the conversational role agents used outside the
// thinker/doer orchestration: the explorer, which turns a loose goal into a
// test brief, and the tester, which executes the brief and records a test
// protocol.
//
// Each agent binds a role prompt, a tool set and a step budget to the doer
// loop:
//
//	explorer := agent.ExplorerAgent(provider, agent.WithTools(ts))
//	res, err := explorer.Run(ctx, transcript)
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/scout/pkg/agent/doer"
	"github.com/entrhq/scout/pkg/agent/prompts"
	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/conversation"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/types"
)

// SessionContextFunc returns text appended to the agent's system prompt for
// one run, or "" for none.
type SessionContextFunc func(ctx context.Context) string

// Agent is a role-bound tool-using assistant.
type Agent struct {
	role           string
	instructions   string
	provider       llm.Provider
	tools          *tools.ToolSet
	maxSteps       int
	logger         *logging.Logger
	sessionContext SessionContextFunc
}

// AgentOption is a function that configures an agent
type AgentOption func(*Agent)

// WithInstructions replaces the role prompt.
func WithInstructions(instructions string) AgentOption {
	return func(a *Agent) {
		a.instructions = instructions
	}
}

// WithTools sets the tools the agent may call.
func WithTools(ts *tools.ToolSet) AgentOption {
	return func(a *Agent) {
		a.tools = ts
	}
}

// WithMaxSteps sets the step budget of one run.
func WithMaxSteps(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.maxSteps = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = l
	}
}

// WithSessionContext adds per-run context to the system prompt.
func WithSessionContext(fn SessionContextFunc) AgentOption {
	return func(a *Agent) {
		a.sessionContext = fn
	}
}

// New creates an agent for role.
func New(role string, provider llm.Provider, opts ...AgentOption) *Agent {
	a := &Agent{
		role:         role,
		instructions: prompts.DoerPrompt,
		provider:     provider,
		tools:        tools.NewToolSet(),
		maxSteps:     doer.DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.NewLogger(role)
	}
	return a
}

// ExplorerAgent creates the agent that writes test briefs.
func ExplorerAgent(provider llm.Provider, opts ...AgentOption) *Agent {
	return New(llm.RoleExplorer, provider, append([]AgentOption{WithInstructions(prompts.ExplorerPrompt)}, opts...)...)
}

// TesterAgent creates the agent that executes test briefs.
func TesterAgent(provider llm.Provider, opts ...AgentOption) *Agent {
	return New(llm.RoleTester, provider, append([]AgentOption{WithInstructions(prompts.TesterPrompt)}, opts...)...)
}

// Role returns the role name.
func (a *Agent) Role() string {
	return a.role
}

// Tools returns the agent's tool set.
func (a *Agent) Tools() *tools.ToolSet {
	return a.tools
}

// Provider returns the provider the agent runs on.
func (a *Agent) Provider() llm.Provider {
	return a.provider
}

// WithProvider returns a copy of the agent running on p, for per-request
// model overrides.
func (a *Agent) WithProvider(p llm.Provider) *Agent {
	cp := *a
	cp.provider = p
	return &cp
}

// Run continues the conversation in transcript and returns the agent's
// reply. A best-effort result is returned when the step budget runs out.
func (a *Agent) Run(ctx context.Context, transcript []types.Message) (*doer.Result, error) {
	history := llm.FromTranscript(transcript)
	if len(history) == 0 {
		return nil, fmt.Errorf("%s: empty conversation", a.role)
	}

	var session string
	if a.sessionContext != nil {
		session = a.sessionContext(ctx)
	}

	exec := doer.NewExecutor(a.provider, doer.WithLogger(a.logger), doer.WithMaxSteps(a.maxSteps))
	res, err := exec.RunConversation(ctx, doer.Request{
		Instructions:   a.instructions,
		SessionContext: session,
		History:        history,
		Tools:          a.tools,
		MaxSteps:       a.maxSteps,
	})
	if err != nil {
		return res, fmt.Errorf("%s: %w", a.role, err)
	}
	a.logger.Debugf("replied after %d steps (%d tool calls)", res.Steps, res.ToolCalls)
	return res, nil
}

// SessionDocuments renders the test brief and protocol stored on key, so
// an agent starts each run knowing the current documents.
func SessionDocuments(store conversation.Store, key string) SessionContextFunc {
	return func(ctx context.Context) string {
		meta, err := store.Meta(ctx, key)
		if err != nil {
			return ""
		}
		var b strings.Builder
		if meta.TestBrief != "" {
			b.WriteString("Current test brief:\n")
			b.WriteString(meta.TestBrief)
		}
		if meta.TestProtocol != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString("Latest test protocol:\n")
			b.WriteString(meta.TestProtocol)
		}
		return b.String()
	}
}

// Roles holds the conversational agents.
type Roles struct {
	Explorer *Agent
	Tester   *Agent
}

// ForService returns the tester for the "testing" conversation and the
// explorer for every other.
func (r Roles) ForService(service string) *Agent {
	if service == conversation.TestingKey {
		return r.Tester
	}
	return r.Explorer
}
