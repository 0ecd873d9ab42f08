package tools

import (
	"context"
	"encoding/xml"
)

// Tool represents a capability that an agent can use during execution.
// Tools are invoked by the model through XML-formatted tool calls.
//
// Example tool call format from the model:
//
//	<tool>
//	<server_name>local</server_name>
//	<tool_name>browser_navigate</tool_name>
//	<arguments>
//	  <url>https://example.com/login</url>
//	</arguments>
//	</tool>
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "browser_click")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters
	Schema() map[string]interface{}

	// Execute runs the tool with the given XML arguments.
	// Returns: (result string, metadata map, error)
	Execute(ctx context.Context, argumentsXML []byte) (string, map[string]interface{}, error)

	// IsLoopBreaking indicates whether a successful call should end the
	// agent loop immediately with the tool's output as the answer.
	IsLoopBreaking() bool
}

// ToolCall represents a parsed tool invocation from the model's response
type ToolCall struct {
	XMLName    xml.Name       `xml:"tool"`
	ServerName string         `xml:"server_name"`
	ToolName   string         `xml:"tool_name"`
	Arguments  ArgumentsBlock `xml:"arguments"`
}

// ArgumentsBlock holds the raw XML of the arguments element
type ArgumentsBlock struct {
	InnerXML []byte `xml:",innerxml"`
}

// GetArgumentsXML returns the arguments wrapped in <arguments> tags for unmarshaling.
func (tc *ToolCall) GetArgumentsXML() []byte {
	const prefix = "<arguments>"
	const suffix = "</arguments>"

	result := make([]byte, 0, len(prefix)+len(tc.Arguments.InnerXML)+len(suffix))
	result = append(result, prefix...)
	result = append(result, tc.Arguments.InnerXML...)
	result = append(result, suffix...)
	return result
}

// Input returns the arguments as a flat map, or nil when they cannot be parsed.
func (tc *ToolCall) Input() map[string]interface{} {
	m, err := XMLToMap(tc.GetArgumentsXML())
	if err != nil {
		return nil
	}
	return m
}

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
