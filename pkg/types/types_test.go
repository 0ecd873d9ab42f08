package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartUnmarshalRejectsUnknownVariant(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "text", input: `{"type":"text","text":"hi"}`},
		{name: "reasoning", input: `{"type":"reasoning","text":"hmm"}`},
		{name: "step boundary", input: `{"type":"step-boundary"}`},
		{name: "tool call", input: `{"type":"tool-call","toolCallId":"c1","toolName":"browser_click","state":"output-available","input":{"selector":"#go"},"output":"ok"}`},
		{name: "unknown type", input: `{"type":"file","url":"x"}`, wantErr: true},
		{name: "tool call without id", input: `{"type":"tool-call","toolName":"x","state":"executing"}`, wantErr: true},
		{name: "tool call unknown state", input: `{"type":"tool-call","toolCallId":"c","toolName":"x","state":"done"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Part
			err := json.Unmarshal([]byte(tt.input), &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, p.Validate())
		})
	}
}

func TestToolCallPartLifecycle(t *testing.T) {
	p := NewToolCallPart("call-1", "browser_navigate", map[string]string{"url": "https://example.com"})
	assert.Equal(t, ToolStateInputAvailable, p.ToolCall.State)
	assert.False(t, p.HasOutput())

	done := p.WithOutput("navigated")
	assert.True(t, done.HasOutput())
	assert.Equal(t, "navigated", done.ToolCall.OutputString())
	// The original is untouched.
	assert.Equal(t, ToolStateInputAvailable, p.ToolCall.State)

	failed := p.WithError("timeout")
	assert.Equal(t, ToolStateOutputError, failed.ToolCall.State)
	assert.True(t, failed.ToolCall.State.Terminal())
	assert.False(t, failed.HasOutput())
}

func TestMessageComplete(t *testing.T) {
	call := NewToolCallPart("c1", "browser_click", nil)

	pending := NewMessage(RoleAssistant, NewTextPart("clicking"), call)
	assert.False(t, pending.Complete())

	finished := NewMessage(RoleAssistant, NewTextPart("clicking"), call.WithOutput("clicked"))
	assert.True(t, finished.Complete())
}

func TestMessageValidate(t *testing.T) {
	assert.NoError(t, NewUserMessage("hello").Validate())

	empty := NewMessage(RoleUser)
	assert.Error(t, empty.Validate())

	bad := NewUserMessage("x")
	bad.Role = "robot"
	assert.Error(t, bad.Validate())
}

func TestMessageJSONPreservesPartOrder(t *testing.T) {
	msg := NewMessage(RoleAssistant,
		NewReasoningPart("plan"),
		NewStepBoundaryPart(),
		NewToolCallPart("c1", "browser_snapshot", nil).WithOutput("tree"),
		NewTextPart("done"),
	)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Parts, 4)
	assert.Equal(t, PartReasoning, decoded.Parts[0].Kind)
	assert.Equal(t, PartStepBoundary, decoded.Parts[1].Kind)
	assert.Equal(t, PartToolCall, decoded.Parts[2].Kind)
	assert.Equal(t, "tree", decoded.Parts[2].ToolCall.OutputString())
	assert.Equal(t, "done", decoded.Text())
}

func TestCloneIsDeep(t *testing.T) {
	orig := []Message{NewMessage(RoleAssistant, NewToolCallPart("c1", "t", nil).WithOutput("big"))}
	cp := CloneMessages(orig)
	cp[0].Parts[0].ToolCall.Output = json.RawMessage(`"removed"`)
	assert.Equal(t, "big", orig[0].Parts[0].ToolCall.OutputString())
}

func TestErrorKinds(t *testing.T) {
	cv := NewContractViolation("maybe later")
	assert.True(t, errors.Is(cv, ErrContractViolation))
	assert.False(t, errors.Is(cv, ErrStepBudgetExhausted))
	assert.Contains(t, cv.Error(), "maybe later")

	wrapped := fmt.Errorf("orchestrate: %w", NewStepBudgetExhausted("Thinker", 10))
	assert.True(t, errors.Is(wrapped, ErrStepBudgetExhausted))
	assert.Equal(t, KindStepBudgetExhausted, KindOf(wrapped))

	cause := errors.New("disk full")
	pf := NewPersistenceFailure("append", "default", cause)
	assert.True(t, errors.Is(pf, ErrPersistenceFailure))
	assert.True(t, errors.Is(pf, cause))
	assert.Equal(t, ErrorKind(""), KindOf(cause))
}

func TestEventWithMetadataDoesNotAlias(t *testing.T) {
	base := NewPlanningStartedEvent(1, 10)
	a := base.WithMetadata("k", "a")
	b := base.WithMetadata("k", "b")
	assert.Equal(t, "a", a.Metadata["k"])
	assert.Equal(t, "b", b.Metadata["k"])
	assert.NotContains(t, base.Metadata, "k")
	assert.True(t, base.Type.Lifecycle())
	assert.False(t, EventTypeTextDelta.Lifecycle())
}
