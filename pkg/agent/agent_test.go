package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/conversation"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/llmtest"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/tools/session"
	"github.com/entrhq/scout/pkg/types"
)

func toolCall(name, args string) string {
	return fmt.Sprintf("<tool><server_name>local</server_name><tool_name>%s</tool_name><arguments>%s</arguments></tool>", name, args)
}

func TestExplorerWritesBrief(t *testing.T) {
	store := conversation.NewMemoryStore()
	provider := llmtest.NewScripted(
		"Saving the brief.\n"+toolCall(session.UpdateTestBriefName, "<content># Basket\n- add the priciest item</content>"),
		"The brief is saved. Shall we start the test?",
	)
	explorer := ExplorerAgent(provider,
		WithTools(session.NewToolSet(store, conversation.DefaultKey)),
		WithLogger(logging.Nop()),
	)

	res, err := explorer.Run(context.Background(), []types.Message{
		types.NewUserMessage("Check that the basket on saucedemo counts items"),
	})

	require.NoError(t, err)
	assert.Equal(t, llm.RoleExplorer, explorer.Role())
	assert.Equal(t, "The brief is saved. Shall we start the test?", res.Text)
	assert.Equal(t, 1, res.ToolCalls)

	meta, err := store.Meta(context.Background(), conversation.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, "# Basket\n- add the priciest item", meta.TestBrief)

	system := provider.Requests()[0][0].Content
	assert.Contains(t, system, "<explorer_role>")
	assert.Contains(t, system, session.UpdateTestBriefName)
}

func TestTesterSeesSessionDocuments(t *testing.T) {
	store := conversation.NewMemoryStore()
	_, err := store.UpdateMeta(context.Background(), conversation.DefaultKey, func(m *conversation.Metadata) {
		m.TestBrief = "# Login\n- standard_user can sign in"
	})
	require.NoError(t, err)

	provider := llmtest.NewScripted("PASSED")
	tester := TesterAgent(provider,
		WithSessionContext(SessionDocuments(store, conversation.DefaultKey)),
		WithLogger(logging.Nop()),
	)

	res, err := tester.Run(context.Background(), []types.Message{types.NewUserMessage("start")})

	require.NoError(t, err)
	assert.Equal(t, "PASSED", res.Text)
	system := provider.Requests()[0][0].Content
	assert.Contains(t, system, "<tester_role>")
	assert.Contains(t, system, "Current test brief:\n# Login")
	assert.NotContains(t, system, "Latest test protocol")
}

func TestSessionDocuments(t *testing.T) {
	store := conversation.NewMemoryStore()
	docs := SessionDocuments(store, conversation.DefaultKey)
	assert.Empty(t, docs(context.Background()))

	_, err := store.UpdateMeta(context.Background(), conversation.DefaultKey, func(m *conversation.Metadata) {
		m.TestBrief = "brief"
		m.TestProtocol = "protocol"
	})
	require.NoError(t, err)
	assert.Equal(t, "Current test brief:\nbrief\n\nLatest test protocol:\nprotocol", docs(context.Background()))
}

func TestRunReplaysTranscript(t *testing.T) {
	provider := llmtest.NewScripted("Use standard_user.")
	a := New("helper", provider, WithLogger(logging.Nop()), WithMaxSteps(3))

	_, err := a.Run(context.Background(), []types.Message{
		types.NewUserMessage("Check the login"),
		types.NewAssistantMessage("Which user?"),
		types.NewUserMessage("Any"),
	})

	require.NoError(t, err)
	req := provider.Requests()[0]
	require.Len(t, req, 4)
	assert.Equal(t, llm.RoleAssistant, req[2].Role)
	assert.Equal(t, "Any", req[3].Content)
}

func TestRunRejectsEmptyConversation(t *testing.T) {
	a := ExplorerAgent(llmtest.NewScripted("unused"), WithLogger(logging.Nop()))

	_, err := a.Run(context.Background(), nil)

	assert.ErrorContains(t, err, "empty conversation")
}

func TestRunWrapsBudgetExhaustion(t *testing.T) {
	provider := llmtest.NewScripted(func([]*llm.Message) string {
		return toolCall("browser_fly", "")
	})
	a := TesterAgent(provider, WithLogger(logging.Nop()), WithMaxSteps(2))

	res, err := a.Run(context.Background(), []types.Message{types.NewUserMessage("go")})

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrStepBudgetExhausted)
	assert.Contains(t, err.Error(), "tester:")
	assert.True(t, res.BestEffort)
}

func TestRolesForService(t *testing.T) {
	roles := Roles{
		Explorer: ExplorerAgent(llmtest.NewScripted(), WithLogger(logging.Nop())),
		Tester:   TesterAgent(llmtest.NewScripted(), WithLogger(logging.Nop())),
	}

	tests := []struct {
		service string
		want    string
	}{
		{conversation.TestingKey, llm.RoleTester},
		{conversation.DefaultKey, llm.RoleExplorer},
		{"", llm.RoleExplorer},
		{"anything", llm.RoleExplorer},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			assert.Equal(t, tt.want, roles.ForService(tt.service).Role())
		})
	}
}

func TestWithProviderCopies(t *testing.T) {
	base := llmtest.NewScripted()
	other := llmtest.NewScripted()
	a := ExplorerAgent(base, WithLogger(logging.Nop()))

	b := a.WithProvider(other)

	assert.Same(t, base, a.Provider())
	assert.Same(t, other, b.Provider())
	assert.Equal(t, a.Role(), b.Role())
}
