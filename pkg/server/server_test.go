package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/agent/orchestrator"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/conversation"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/llmtest"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/tools/session"
	"github.com/entrhq/scout/pkg/types"
)

type sseEvent struct {
	Type string
	Data types.OrchestratorEvent
}

type fixture struct {
	store    *conversation.MemoryStore
	provider *llmtest.Scripted
	registry *prometheus.Registry
	srv      *httptest.Server
}

func newFixture(t *testing.T, replies ...interface{}) *fixture {
	t.Helper()
	f := &fixture{
		store:    conversation.NewMemoryStore(),
		provider: llmtest.NewScripted(replies...),
		registry: prometheus.NewRegistry(),
	}
	router, err := llm.NewRouter(f.provider, nil, 0)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Server.Heartbeat = 0
	s := New(f.store, router,
		WithOrchestratorConfig(cfg.Orchestrator),
		WithServerConfig(cfg.Server),
		WithMetrics(orchestrator.MustNewMetrics(f.registry), f.registry),
		WithLogger(logging.Nop()),
		WithVersion("test"),
	)
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current = sseEvent{Type: strings.TrimPrefix(line, "event: ")}
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &current.Data))
		case line == "" && current.Type != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func eventTypes(events []sseEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func toolCall(name, args string) string {
	return fmt.Sprintf("<tool><server_name>local</server_name><tool_name>%s</tool_name><arguments>%s</arguments></tool>", name, args)
}

func TestThinkerStreamsAndPersists(t *testing.T) {
	f := newFixture(t,
		"TASK: read the title of https://example.com",
		"The title is Example Domain.",
		"FINISH: The page title is Example Domain.",
	)

	resp := f.post(t, "/api/thinker", thinkerRequest{
		Messages: []types.Message{types.NewUserMessage("What is the title of example.com?")},
	})
	events := readEvents(t, resp)

	assert.Equal(t, []string{
		"planning-started", "decision-made", "delegation-started", "delegation-completed",
		"planning-started", "decision-made", "finished",
		"text-start", "text-delta", "text-end",
	}, eventTypes(events))
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Data.Seq, events[i-1].Data.Seq)
	}
	delta := events[len(events)-2].Data
	assert.Equal(t, "thinker-doer-response", delta.ID)
	assert.Equal(t, "The page title is Example Domain.", delta.Content)

	stored, err := f.store.Load(context.Background(), conversation.DefaultKey)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, types.RoleUser, stored[0].Role)
	assert.Equal(t, types.RoleAssistant, stored[1].Role)
	assert.Contains(t, stored[1].Text(), "The page title is Example Domain.")

	// The delegated task reaches the doer as its only user turn.
	doerReq := f.provider.Requests()[1]
	assert.Contains(t, doerReq[0].Content, "<executor_role>")
	assert.Equal(t, "read the title of https://example.com", doerReq[len(doerReq)-1].Content)
}

func TestThinkerContractViolationStreamsError(t *testing.T) {
	f := newFixture(t, "Sure, the title is Example Domain.")

	resp := f.post(t, "/api/thinker", thinkerRequest{
		Messages: []types.Message{types.NewUserMessage("title?")},
		Service:  "default",
	})
	events := readEvents(t, resp)

	assert.Equal(t, []string{"planning-started", "error", "text-start", "text-delta", "text-end"}, eventTypes(events))
	assert.Equal(t, types.KindContractViolation, events[1].Data.ErrorKind)
	assert.Equal(t, "thinker-doer-error", events[3].Data.ID)
	assert.True(t, strings.HasPrefix(events[3].Data.Content, "Error: "))

	stored, err := f.store.Load(context.Background(), conversation.DefaultKey)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "only the user message is stored")
}

func TestThinkerUsesStoredHistory(t *testing.T) {
	f := newFixture(t, "TASK: check", "checked", "FINISH: done")
	require.NoError(t, f.store.Append(context.Background(), conversation.DefaultKey, types.NewUserMessage("check the basket")))

	events := readEvents(t, f.post(t, "/api/thinker", thinkerRequest{}))

	assert.Equal(t, "text-end", events[len(events)-1].Type)
	first := f.provider.Requests()[0]
	assert.Equal(t, "check the basket", first[len(first)-1].Content)
}

func TestRunRequestValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		path string
		body interface{}
	}{
		{"thinker without history", "/api/thinker", thinkerRequest{}},
		{"chat without history", "/api/chat", chatRequest{Service: "testing"}},
		{"invalid service", "/api/thinker", thinkerRequest{Service: "../etc", Messages: []types.Message{types.NewUserMessage("x")}}},
		{"malformed body", "/api/chat", "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body map[string]string
			decodeJSON(t, resp, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Zero(t, f.provider.Calls())
}

func TestChatTesterPersistsReply(t *testing.T) {
	f := newFixture(t, "PASSED: the cart shows 1 item.")

	resp := f.post(t, "/api/chat", chatRequest{
		Messages: []types.Message{types.NewUserMessage("start the test")},
		Service:  conversation.TestingKey,
	})
	events := readEvents(t, resp)

	assert.Equal(t, []string{"text-start", "text-delta", "text-end"}, eventTypes(events))
	assert.Equal(t, "PASSED: the cart shows 1 item.", events[1].Data.Content)
	assert.Contains(t, f.provider.Requests()[0][0].Content, "<tester_role>")

	stored, err := f.store.Load(context.Background(), conversation.TestingKey)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, events[1].Data.ID, stored[1].ID)
	assert.Equal(t, "PASSED: the cart shows 1 item.", stored[1].Text())

	def, err := f.store.Load(context.Background(), conversation.DefaultKey)
	require.NoError(t, err)
	assert.Empty(t, def)
}

func TestChatExplorerWritesSharedBrief(t *testing.T) {
	f := newFixture(t,
		toolCall(session.UpdateTestBriefName, "<content># Basket</content>"),
		"Brief saved. Shall we start?",
	)

	events := readEvents(t, f.post(t, "/api/chat", chatRequest{
		Messages: []types.Message{types.NewUserMessage("test the basket")},
	}))

	assert.Equal(t, []string{"tool-call", "tool-result", "text-start", "text-delta", "text-end"}, eventTypes(events))
	assert.Contains(t, f.provider.Requests()[0][0].Content, "<explorer_role>")

	var got sessionResponse
	decodeJSON(t, f.do(t, http.MethodGet, "/api/session"), &got)
	assert.Equal(t, "# Basket", got.TestBrief)
	assert.Equal(t, sessionBrief, got.Status)
	require.Len(t, got.ChatHistory, 2)
	assert.Empty(t, got.TestHistory)

	stored, err := f.store.Load(context.Background(), conversation.DefaultKey)
	require.NoError(t, err)
	assert.True(t, stored[1].Complete())
}

func TestChatFailureStreamsError(t *testing.T) {
	f := newFixture(t, fmt.Errorf("upstream unavailable"))

	events := readEvents(t, f.post(t, "/api/chat", chatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	}))

	assert.Equal(t, []string{"error", "text-start", "text-delta", "text-end"}, eventTypes(events))
	assert.Contains(t, events[2].Data.Content, "upstream unavailable")
}

func TestConversationEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Append(ctx, conversation.TestingKey, types.NewUserMessage("open the login page")))
	require.NoError(t, f.store.Append(ctx, conversation.TestingKey, types.NewAssistantMessage("opened")))

	var got conversationResponse
	decodeJSON(t, f.do(t, http.MethodGet, "/api/conversation?service=testing"), &got)
	assert.Equal(t, conversation.TestingKey, got.Key)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, 2, got.Meta.MessageCount)
	assert.Positive(t, got.Tokens)

	resp := f.do(t, http.MethodDelete, "/api/conversation?service=testing")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	decodeJSON(t, f.do(t, http.MethodGet, "/api/conversation?service=testing"), &got)
	assert.Empty(t, got.Messages)
	assert.NotNil(t, got.Messages)
	assert.Equal(t, conversation.StatusCleared, got.Meta.Status)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/conversation?service=Bad%20Key").StatusCode)
}

func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Append(ctx, conversation.TestingKey, types.NewUserMessage("go")))

	resp := f.post(t, "/api/session", map[string]interface{}{
		"testBrief": "# Login",
		"extra":     map[string]interface{}{"target": "saucedemo"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ack map[string]interface{}
	decodeJSON(t, resp, &ack)
	assert.Equal(t, true, ack["success"])
	assert.NotEmpty(t, ack["timestamp"])

	f.post(t, "/api/session", map[string]interface{}{"testProtocol": "PASSED"})

	var got sessionResponse
	decodeJSON(t, f.do(t, http.MethodGet, "/api/session"), &got)
	assert.Equal(t, conversation.DefaultKey, got.SessionID)
	assert.Equal(t, "# Login", got.TestBrief, "absent fields are kept")
	assert.Equal(t, "PASSED", got.TestProtocol)
	assert.Equal(t, "saucedemo", got.Extra["target"])
	assert.Equal(t, sessionTesting, got.Status)
	assert.Len(t, got.TestHistory, 1)

	resp = f.do(t, http.MethodDelete, "/api/session")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got = sessionResponse{}
	decodeJSON(t, f.do(t, http.MethodGet, "/api/session"), &got)
	assert.Empty(t, got.TestBrief)
	assert.Empty(t, got.TestProtocol)
	assert.Empty(t, got.TestHistory)
	assert.Equal(t, sessionBrief, got.Status)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	f := newFixture(t, "FINISH: hi")

	var health map[string]string
	decodeJSON(t, f.do(t, http.MethodGet, "/healthz"), &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "test", health["version"])

	// A rejected run still counts.
	readEvents(t, f.post(t, "/api/thinker", thinkerRequest{Messages: []types.Message{types.NewUserMessage("hi")}}))
	body, err := io.ReadAll(f.do(t, http.MethodGet, "/metrics").Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `scout_orchestrator_runs_total{outcome="contract_violation"} 1`)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
