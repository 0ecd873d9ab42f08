package tools

import "context"

// FuncTool adapts a function over flat string arguments into a Tool.
type FuncTool struct {
	name        string
	description string
	schema      map[string]interface{}
	fn          func(ctx context.Context, args map[string]interface{}) (string, error)
}

// NewFuncTool creates a tool named name that calls fn with the parsed arguments.
func NewFuncTool(name, description string, schema map[string]interface{}, fn func(ctx context.Context, args map[string]interface{}) (string, error)) *FuncTool {
	if schema == nil {
		schema = BaseToolSchema(map[string]interface{}{}, nil)
	}
	return &FuncTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *FuncTool) Name() string                   { return t.name }
func (t *FuncTool) Description() string            { return t.description }
func (t *FuncTool) Schema() map[string]interface{} { return t.schema }
func (t *FuncTool) IsLoopBreaking() bool           { return false }

// Execute parses the XML arguments into a map and calls the function.
func (t *FuncTool) Execute(ctx context.Context, argumentsXML []byte) (string, map[string]interface{}, error) {
	args, err := XMLToMap(argumentsXML)
	if err != nil {
		return "", nil, err
	}
	out, err := t.fn(ctx, args)
	return out, nil, err
}
