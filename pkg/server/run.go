package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/scout/pkg/agent/doer"
	"github.com/entrhq/scout/pkg/agent/orchestrator"
	"github.com/entrhq/scout/pkg/conversation"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/stream"
	"github.com/entrhq/scout/pkg/tools/browser"
	"github.com/entrhq/scout/pkg/types"
)

const maxBodyBytes = 8 << 20

var errNoMessages = errors.New("no messages to respond to")

type thinkerRequest struct {
	Messages     []types.Message `json:"messages"`
	Service      string          `json:"service"`
	PlannerModel string          `json:"plannerModel,omitempty"`
	DoerModel    string          `json:"doerModel,omitempty"`
}

type chatRequest struct {
	Messages []types.Message `json:"messages"`
	Service  string          `json:"service"`
	Model    string          `json:"model,omitempty"`
}

// handleThinker runs one planner/doer invocation and streams its events.
func (s *Server) handleThinker(w http.ResponseWriter, r *http.Request) {
	var req thinkerRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	key, err := serviceKey(req.Service)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := browser.WithSessionKey(r.Context(), key)
	history, err := s.prepareHistory(ctx, key, req.Messages)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	orch := s.newOrchestrator(req.PlannerModel, req.DoerModel)

	sink, err := stream.NewSSESink(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sink.StartHeartbeat(s.cfg.Heartbeat)
	defer sink.Close()

	out, err := orch.Stream(ctx, history, stream.NewEmitter(sink))
	if err != nil {
		s.logger.Warnf("thinker run on %q failed: %v", key, err)
		return
	}
	s.recorder.Append(context.WithoutCancel(ctx), key, out.Message())
}

func (s *Server) newOrchestrator(plannerModel, doerModel string) *orchestrator.Orchestrator {
	planner := s.router.For(llm.RolePlanner)
	if plannerModel != "" {
		planner = s.router.WithModel(plannerModel)
	}
	doerProvider := s.router.For(llm.RoleDoer)
	if doerModel != "" {
		doerProvider = s.router.WithModel(doerModel)
	}

	delegate := &doer.Bound{
		Executor: doer.NewExecutor(doerProvider, doer.WithMaxSteps(s.orch.DoerMaxSteps)),
		Tools:    s.toolSet(),
		MaxSteps: s.orch.DoerMaxSteps,
	}
	return orchestrator.New(planner, delegate,
		orchestrator.WithMaxSteps(s.orch.MaxSteps),
		orchestrator.WithRequireDelegation(s.orch.RequireDelegation),
		orchestrator.WithCompactor(s.compactor),
		orchestrator.WithMetrics(s.metrics),
	)
}

// handleChat runs the role agent selected by the service and streams its
// tool activity and reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	key, err := serviceKey(req.Service)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := browser.WithSessionKey(r.Context(), key)
	history, err := s.prepareHistory(ctx, key, req.Messages)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	history, stats := s.compactor.Compact(history)
	if stats.Redacted > 0 {
		s.logger.Debugf("chat %q: redacted %d tool outputs", key, stats.Redacted)
	}

	a := s.roles.ForService(key)
	if req.Model != "" {
		a = a.WithProvider(s.router.WithModel(req.Model))
	}

	sink, err := stream.NewSSESink(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sink.StartHeartbeat(s.cfg.Heartbeat)
	defer sink.Close()

	em := stream.NewEmitter(sink)
	ctx = doer.ContextWithObserver(ctx, func(ev types.OrchestratorEvent) {
		if err := em.Emit(ev); err != nil {
			s.logger.Debugf("dropping %s event: %v", ev.Type, err)
		}
	})

	res, err := a.Run(ctx, history)
	if err != nil {
		s.logger.Warnf("%s run on %q failed: %v", a.Role(), key, err)
		if ferr := em.Fail(err); ferr != nil {
			s.logger.Debugf("failed to report error: %v", ferr)
		}
		return
	}

	reply := types.NewMessage(types.RoleAssistant, res.Parts...)
	if ferr := em.FinishTextWithID(reply.ID, res.Text); ferr != nil {
		s.logger.Debugf("failed to emit reply: %v", ferr)
	}
	if len(reply.Parts) > 0 {
		s.recorder.Append(context.WithoutCancel(ctx), key, reply)
	}
}

// prepareHistory returns the transcript to run on. Without client messages
// the stored transcript is used; otherwise the latest user message is
// persisted and the client's messages are used as sent.
func (s *Server) prepareHistory(ctx context.Context, key string, msgs []types.Message) ([]types.Message, error) {
	if len(msgs) == 0 {
		history := s.recorder.Load(ctx, key)
		if len(history) == 0 {
			return nil, errNoMessages
		}
		return history, nil
	}

	msgs = normalize(msgs)
	if last := msgs[len(msgs)-1]; last.Role == types.RoleUser {
		s.recorder.Append(ctx, key, last)
	}
	return msgs, nil
}

// normalize fills in IDs and timestamps clients may omit.
func normalize(msgs []types.Message) []types.Message {
	out := types.CloneMessages(msgs)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
		if out[i].CreatedAt.IsZero() {
			out[i].CreatedAt = time.Now().UTC()
		}
	}
	return out
}

// serviceKey maps a service name to a conversation key. Empty means the
// default conversation.
func serviceKey(service string) (string, error) {
	if service == "" {
		return conversation.DefaultKey, nil
	}
	if err := conversation.ValidateKey(service); err != nil {
		return "", err
	}
	return service, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
