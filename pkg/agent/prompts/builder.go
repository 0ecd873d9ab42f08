package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/llm"
)

// PromptBuilder constructs the system prompt for a role.
type PromptBuilder struct {
	role           string
	tools          []tools.Tool
	sessionContext string
	reasoning      bool
}

// NewPromptBuilder creates a builder for the given role instructions.
func NewPromptBuilder(roleInstructions string) *PromptBuilder {
	return &PromptBuilder{role: roleInstructions, reasoning: true}
}

// WithTools sets the tools the role may call.
func (pb *PromptBuilder) WithTools(toolsList []tools.Tool) *PromptBuilder {
	pb.tools = toolsList
	return pb
}

// WithSessionContext adds session documents such as the current test brief.
func (pb *PromptBuilder) WithSessionContext(context string) *PromptBuilder {
	pb.sessionContext = context
	return pb
}

// WithoutReasoning drops the chain-of-thought section. The planner uses
// this because its reply must start with the decision prefix.
func (pb *PromptBuilder) WithoutReasoning() *PromptBuilder {
	pb.reasoning = false
	return pb
}

// Build assembles the prompt sections.
func (pb *PromptBuilder) Build() string {
	var builder strings.Builder

	builder.WriteString(strings.TrimSpace(pb.role))
	builder.WriteString("\n\n")

	if pb.sessionContext != "" {
		builder.WriteString("<session_context>\n")
		builder.WriteString(pb.sessionContext)
		builder.WriteString("\n</session_context>\n\n")
	}

	if pb.reasoning {
		builder.WriteString(ChainOfThoughtPrompt)
		builder.WriteString("\n\n")
	}

	if len(pb.tools) > 0 {
		builder.WriteString(ToolCallingPrompt)
		builder.WriteString("\n\n<available_tools>\n")
		builder.WriteString(FormatToolSchemas(pb.tools))
		builder.WriteString("</available_tools>\n")
	}

	return strings.TrimSpace(builder.String())
}

// BuildMessages creates the model-facing message list: the system prompt
// followed by the history, with any system messages in the history kept in
// place because the orchestrator injects sub-agent results that way.
func BuildMessages(systemPrompt string, history []*llm.Message) []*llm.Message {
	messages := make([]*llm.Message, 0, len(history)+1)
	messages = append(messages, llm.NewSystemMessage(systemPrompt))
	messages = append(messages, history...)
	return messages
}

// SubAgentResult formats the synthetic turn appended after a delegation.
func SubAgentResult(result string) string {
	return fmt.Sprintf("RESULT FROM SUB-AGENT:\n%s\nUse this to produce a FINISH response.", result)
}

// ToolResultMessage formats a successful tool result fed back to a model.
func ToolResultMessage(toolName, output string) string {
	return fmt.Sprintf("Tool '%s' result:\n%s", toolName, output)
}

// ToolFailureMessage formats a failed tool call fed back to a model.
func ToolFailureMessage(toolName string, err error) string {
	return fmt.Sprintf("Tool '%s' failed:\n%v\n\nCheck the arguments or try a different approach.", toolName, err)
}

// FormatToolSchema renders one tool for the <available_tools> section.
func FormatToolSchema(tool tools.Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n%s\n", tool.Name(), tool.Description())

	schema := tool.Schema()
	props, _ := schema["properties"].(map[string]interface{}) //nolint:errcheck
	if len(props) > 0 {
		required := map[string]bool{}
		if req, ok := schema["required"].([]string); ok {
			for _, r := range req {
				required[r] = true
			}
		}
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("Parameters:\n")
		for _, name := range names {
			prop, _ := props[name].(map[string]interface{}) //nolint:errcheck
			typ, _ := prop["type"].(string)                  //nolint:errcheck
			desc, _ := prop["description"].(string)          //nolint:errcheck
			req := "optional"
			if required[name] {
				req = "required"
			}
			fmt.Fprintf(&b, "- %s (%s, %s): %s\n", name, typ, req, desc)
		}
	}

	if tool.IsLoopBreaking() {
		b.WriteString("This tool is loop-breaking: a successful call ends your turn.\n")
	}

	example := GenerateXMLExample(schema, tool.Name())
	if p, ok := tool.(XMLExampleProvider); ok {
		example = p.XMLExample()
	}
	fmt.Fprintf(&b, "Example:\n%s\n", example)
	return b.String()
}

// FormatToolSchemas renders all tools.
func FormatToolSchemas(toolsList []tools.Tool) string {
	if len(toolsList) == 0 {
		return "No tools available.\n"
	}
	var b strings.Builder
	b.WriteString("# AVAILABLE TOOLS\n\n")
	for _, t := range toolsList {
		b.WriteString(FormatToolSchema(t))
		b.WriteString("\n")
	}
	return b.String()
}
