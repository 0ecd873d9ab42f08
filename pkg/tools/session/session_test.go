package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/conversation"
	"github.com/entrhq/scout/pkg/types"
)

func call(t *testing.T, ts *tools.ToolSet, name, args string) tools.Outcome {
	t.Helper()
	tc, _, err := tools.ParseToolCall("<tool><tool_name>" + name + "</tool_name><arguments>" + args + "</arguments></tool>")
	require.NoError(t, err)
	return ts.Execute(context.Background(), tc)
}

func decode(t *testing.T, out tools.Outcome) Result {
	t.Helper()
	require.True(t, out.Success, "%v", out.Err)
	var r Result
	require.NoError(t, json.Unmarshal([]byte(out.Output), &r))
	return r
}

func TestSessionDocuments(t *testing.T) {
	store := conversation.NewMemoryStore()
	require.NoError(t, store.Append(context.Background(), conversation.DefaultKey, types.NewUserMessage("check the basket")))
	ts := NewToolSet(store, conversation.DefaultKey)

	assert.Equal(t, []string{GetSessionMetaName, UpdateTestBriefName, UpdateTestProtocolName}, ts.Names())

	empty := decode(t, call(t, ts, GetSessionMetaName, ""))
	assert.True(t, empty.Success)
	assert.Empty(t, empty.Meta.TestBrief)

	brief := decode(t, call(t, ts, UpdateTestBriefName, "<content><![CDATA[# Basket\n- add <item> & check]]></content>"))
	assert.Equal(t, "Session metadata updated", brief.Message)
	assert.Equal(t, "# Basket\n- add <item> & check", brief.Meta.TestBrief)
	assert.Equal(t, 1, brief.Meta.MessageCount)

	protocol := decode(t, call(t, ts, UpdateTestProtocolName, "<content>PASSED</content>"))
	assert.Equal(t, "PASSED", protocol.Meta.TestProtocol)
	assert.Equal(t, "# Basket\n- add <item> & check", protocol.Meta.TestBrief, "updates merge")

	got := decode(t, call(t, ts, GetSessionMetaName, ""))
	assert.Equal(t, "PASSED", got.Meta.TestProtocol)
	assert.False(t, got.Meta.LastUpdated.IsZero())

	meta, err := store.Meta(context.Background(), conversation.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, "PASSED", meta.TestProtocol)
}

func TestUpdateRequiresContent(t *testing.T) {
	ts := NewToolSet(conversation.NewMemoryStore(), conversation.DefaultKey)

	out := call(t, ts, UpdateTestBriefName, "")

	assert.False(t, out.Success)
	assert.ErrorContains(t, out.Err, "content is required")
}

type brokenStore struct{ conversation.Store }

func (brokenStore) UpdateMeta(context.Context, string, func(*conversation.Metadata)) (conversation.Metadata, error) {
	return conversation.Metadata{}, errors.New("read-only file system")
}

func (brokenStore) Meta(context.Context, string) (conversation.Metadata, error) {
	return conversation.Metadata{}, errors.New("read-only file system")
}

func TestStoreFailuresAreToolFailures(t *testing.T) {
	ts := NewToolSet(brokenStore{}, conversation.DefaultKey)

	out := call(t, ts, UpdateTestBriefName, "<content>x</content>")
	assert.False(t, out.Success)
	assert.ErrorContains(t, out.Err, "read-only file system")

	out = call(t, ts, GetSessionMetaName, "")
	assert.False(t, out.Success)
}
