package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/scout/pkg/types"
)

// Role is the chat role of a model-facing message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a flat chat message as sent to a provider.
type Message struct {
	Role    Role
	Content string
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// FromTranscript renders transcript messages into flat model messages.
// Reasoning and step boundaries are dropped; a tool call becomes the XML
// invocation on the assistant side followed by a user turn carrying its
// result, the same shape the doer loop produces live.
func FromTranscript(msgs []types.Message) []*Message {
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		var buf strings.Builder
		flush := func(role Role) {
			if s := strings.TrimSpace(buf.String()); s != "" {
				out = append(out, &Message{Role: role, Content: s})
			}
			buf.Reset()
		}
		role := Role(m.Role)
		for _, p := range m.Parts {
			switch p.Kind {
			case types.PartText:
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
				buf.WriteString(p.Text)
			case types.PartReasoning, types.PartStepBoundary:
			case types.PartToolCall:
				tc := p.ToolCall
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
				buf.WriteString(renderToolCall(tc))
				flush(role)
				out = append(out, &Message{Role: RoleUser, Content: renderToolResult(tc)})
			}
		}
		flush(role)
	}
	return out
}

func renderToolCall(tc *types.ToolCallPart) string {
	var args strings.Builder
	var input map[string]interface{}
	if len(tc.Input) > 0 && json.Unmarshal(tc.Input, &input) == nil {
		keys := make([]string, 0, len(input))
		for k := range input {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&args, "<%s>%v</%s>", k, input[k], k)
		}
	}
	return fmt.Sprintf("<tool><server_name>local</server_name><tool_name>%s</tool_name><arguments>%s</arguments></tool>",
		tc.ToolName, args.String())
}

func renderToolResult(tc *types.ToolCallPart) string {
	switch tc.State {
	case types.ToolStateOutputAvailable:
		return fmt.Sprintf("Tool '%s' result:\n%s", tc.ToolName, tc.OutputString())
	case types.ToolStateOutputError:
		return fmt.Sprintf("Tool '%s' failed:\n%s", tc.ToolName, tc.ErrorText)
	default:
		return fmt.Sprintf("Tool '%s' did not complete (%s)", tc.ToolName, tc.State)
	}
}
