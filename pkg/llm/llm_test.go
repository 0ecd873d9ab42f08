package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/llmtest"
	"github.com/entrhq/scout/pkg/types"
)

func TestRouterResolvesRoles(t *testing.T) {
	base := llmtest.NewScripted()
	r, err := llm.NewRouter(base, map[string]string{
		llm.RolePlanner: "big-model",
		llm.RoleDoer:    "",
	}, 4)
	require.NoError(t, err)

	planner := r.For(llm.RolePlanner)
	assert.Equal(t, "big-model", planner.GetModel())
	assert.Same(t, planner, r.For(llm.RolePlanner), "clones are cached")

	assert.Same(t, llm.Provider(base), r.For(llm.RoleDoer))
	assert.Equal(t, "scripted", r.Model(llm.RoleDoer))

	r.SetModel(llm.RoleDoer, "small-model")
	assert.Equal(t, "small-model", r.For(llm.RoleDoer).GetModel())
	assert.Equal(t, "small-model", r.Model(llm.RoleDoer))
}

func TestRouterWithoutCloner(t *testing.T) {
	base := &llmtest.MockProvider{}
	r, err := llm.NewRouter(base, map[string]string{llm.RolePlanner: "x"}, 0)
	require.NoError(t, err)
	assert.Same(t, llm.Provider(base), r.For(llm.RolePlanner))
}

func TestNewRouterRequiresBase(t *testing.T) {
	_, err := llm.NewRouter(nil, nil, 1)
	assert.Error(t, err)
}

func TestFromTranscript(t *testing.T) {
	call := types.NewToolCallPart("c1", "browser_navigate", map[string]string{"url": "https://example.com"})
	failed := types.NewToolCallPart("c2", "browser_click", map[string]string{"selector": "#x"})

	msgs := []types.Message{
		types.NewUserMessage("check the homepage"),
		types.NewMessage(types.RoleAssistant,
			types.NewReasoningPart("hidden"),
			types.NewTextPart("navigating"),
			call.WithOutput("loaded"),
			types.NewStepBoundaryPart(),
			failed.WithError("not found"),
			types.NewTextPart("the page loaded"),
		),
	}

	out := llm.FromTranscript(msgs)
	require.Len(t, out, 6)

	assert.Equal(t, llm.RoleUser, out[0].Role)
	assert.Equal(t, "check the homepage", out[0].Content)

	assert.Equal(t, llm.RoleAssistant, out[1].Role)
	assert.Contains(t, out[1].Content, "navigating")
	assert.Contains(t, out[1].Content, "<tool_name>browser_navigate</tool_name>")
	assert.Contains(t, out[1].Content, "<url>https://example.com</url>")
	assert.NotContains(t, out[1].Content, "hidden")

	assert.Equal(t, llm.RoleUser, out[2].Role)
	assert.Equal(t, "Tool 'browser_navigate' result:\nloaded", out[2].Content)

	assert.Equal(t, llm.RoleAssistant, out[3].Role)
	assert.Equal(t, "Tool 'browser_click' failed:\nnot found", out[4].Content)

	assert.Equal(t, "the page loaded", out[5].Content)
}
