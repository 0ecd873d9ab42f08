package server

import (
	"context"
	"net/http"
	"time"

	"github.com/entrhq/scout/pkg/conversation"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/types"
)

type conversationResponse struct {
	Key      string                `json:"key"`
	Messages []types.Message       `json:"messages"`
	Meta     conversation.Metadata `json:"meta"`
	Tokens   int                   `json:"tokens"`
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	key, err := serviceKey(r.URL.Query().Get("service"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	msgs := s.recorder.Load(r.Context(), key)
	respondJSON(w, http.StatusOK, conversationResponse{
		Key:      key,
		Messages: msgs,
		Meta:     s.recorder.Meta(r.Context(), key),
		Tokens:   s.counter.CountMessages(llm.FromTranscript(msgs)),
	})
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	key, err := serviceKey(r.URL.Query().Get("service"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.recorder.Clear(r.Context(), key) {
		respondError(w, http.StatusInternalServerError, "failed to clear conversation")
		return
	}
	s.closeBrowser(key)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// sessionResponse merges the metadata of both conversations with their
// transcripts. The session documents live on the default key.
type sessionResponse struct {
	SessionID    string                 `json:"sessionId"`
	Status       string                 `json:"status"`
	CreatedAt    time.Time              `json:"createdAt"`
	LastUpdated  time.Time              `json:"lastUpdated"`
	TestBrief    string                 `json:"testBrief,omitempty"`
	TestProtocol string                 `json:"testProtocol,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
	ChatHistory  []types.Message        `json:"chatHistory"`
	TestHistory  []types.Message        `json:"testHistory"`
}

// Session statuses reported by GET /api/session.
const (
	sessionBrief   = "brief"
	sessionTesting = "testing"
)

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chat := s.recorder.Meta(ctx, conversation.DefaultKey)
	test := s.recorder.Meta(ctx, conversation.TestingKey)

	resp := sessionResponse{
		SessionID:    chat.ConversationID,
		Status:       sessionBrief,
		CreatedAt:    chat.CreatedAt,
		LastUpdated:  chat.LastUpdated,
		TestBrief:    chat.TestBrief,
		TestProtocol: chat.TestProtocol,
		Extra:        chat.Extra,
		ChatHistory:  s.recorder.Load(ctx, conversation.DefaultKey),
		TestHistory:  s.recorder.Load(ctx, conversation.TestingKey),
	}
	if test.MessageCount > 0 {
		resp.Status = sessionTesting
	}
	if test.LastUpdated.After(resp.LastUpdated) {
		resp.LastUpdated = test.LastUpdated
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = test.CreatedAt
	}
	respondJSON(w, http.StatusOK, resp)
}

// sessionPatch lists the fields POST /api/session may change. Absent
// fields are kept.
type sessionPatch struct {
	TestBrief    *string                `json:"testBrief"`
	TestProtocol *string                `json:"testProtocol"`
	Extra        map[string]interface{} `json:"extra"`
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var patch sessionPatch
	if err := decodeBody(w, r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta, err := s.store.UpdateMeta(r.Context(), conversation.DefaultKey, func(m *conversation.Metadata) {
		if patch.TestBrief != nil {
			m.TestBrief = *patch.TestBrief
		}
		if patch.TestProtocol != nil {
			m.TestProtocol = *patch.TestProtocol
		}
		if len(patch.Extra) > 0 && m.Extra == nil {
			m.Extra = make(map[string]interface{}, len(patch.Extra))
		}
		for k, v := range patch.Extra {
			m.Extra[k] = v
		}
	})
	if err != nil {
		s.logger.Errorf("session update failed: %v", types.NewPersistenceFailure("update_meta", conversation.DefaultKey, err))
		respondError(w, http.StatusInternalServerError, "failed to update session data")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "timestamp": meta.LastUpdated})
}

// handleResetSession clears both conversations and the session documents.
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	for _, key := range []string{conversation.DefaultKey, conversation.TestingKey} {
		if !s.recorder.Clear(ctx, key) {
			respondError(w, http.StatusInternalServerError, "failed to reset session")
			return
		}
		s.closeBrowser(key)
	}
	if err := s.resetDocuments(ctx); err != nil {
		s.logger.Errorf("session reset failed: %v", types.NewPersistenceFailure("update_meta", conversation.DefaultKey, err))
		respondError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Session reset successfully"})
}

func (s *Server) resetDocuments(ctx context.Context) error {
	_, err := s.store.UpdateMeta(ctx, conversation.DefaultKey, func(m *conversation.Metadata) {
		m.TestBrief = ""
		m.TestProtocol = ""
		m.Extra = nil
	})
	return err
}

func (s *Server) closeBrowser(key string) {
	if s.browser == nil {
		return
	}
	if err := s.browser.CloseSession(key); err != nil {
		s.logger.Warnf("failed to close browser session %q: %v", key, err)
	}
}
