// Package session provides the tools agents use to read and write the
// session documents: the test brief and the test protocol.
//
// Both documents live in the metadata of one conversation key, so the
// explorer that writes a brief and the tester that executes it share them.
package session

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/conversation"
)

// Tool names.
const (
	UpdateTestBriefName    = "update_test_brief"
	UpdateTestProtocolName = "update_test_protocol"
	GetSessionMetaName     = "get_session_meta"
)

// Result is the JSON body returned by every session tool.
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Meta    *conversation.Metadata `json:"meta"`
}

// NewToolSet returns the session tools over the metadata of key in store.
func NewToolSet(store conversation.Store, key string) *tools.ToolSet {
	return tools.NewToolSet(
		&updateTool{store: store, key: key, name: UpdateTestBriefName, field: "brief",
			set: func(m *conversation.Metadata, v string) { m.TestBrief = v }},
		&updateTool{store: store, key: key, name: UpdateTestProtocolName, field: "protocol",
			set: func(m *conversation.Metadata, v string) { m.TestProtocol = v }},
		&getMetaTool{store: store, key: key},
	)
}

// ContentInput is the input of the update tools.
type ContentInput struct {
	XMLName xml.Name `xml:"arguments"`
	Content string   `xml:"content"`
}

type updateTool struct {
	store conversation.Store
	key   string
	name  string
	field string
	set   func(*conversation.Metadata, string)
}

func (t *updateTool) Name() string { return t.name }

func (t *updateTool) Description() string {
	return fmt.Sprintf("Create or replace the test %s markdown in the session metadata.", t.field)
}

func (t *updateTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"content": map[string]interface{}{
			"type":        "string",
			"description": fmt.Sprintf("The complete test %s as markdown", t.field),
		},
	}, []string{"content"})
}

func (t *updateTool) IsLoopBreaking() bool { return false }

func (t *updateTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input ContentInput
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if input.Content == "" {
		return "", nil, fmt.Errorf("content is required")
	}

	meta, err := t.store.UpdateMeta(ctx, t.key, func(m *conversation.Metadata) {
		t.set(m, input.Content)
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to update session metadata: %w", err)
	}
	return encode(Result{Success: true, Message: "Session metadata updated", Meta: &meta})
}

type getMetaTool struct {
	store conversation.Store
	key   string
}

func (t *getMetaTool) Name() string { return GetSessionMetaName }

func (t *getMetaTool) Description() string {
	return "Get the current session metadata, including the test brief and test protocol."
}

func (t *getMetaTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{}, nil)
}

func (t *getMetaTool) IsLoopBreaking() bool { return false }

func (t *getMetaTool) Execute(ctx context.Context, _ []byte) (string, map[string]interface{}, error) {
	meta, err := t.store.Meta(ctx, t.key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read session metadata: %w", err)
	}
	return encode(Result{Success: true, Meta: &meta})
}

func encode(r Result) (string, map[string]interface{}, error) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", nil, err
	}
	return string(out), map[string]interface{}{"key": r.Meta.Key}, nil
}
