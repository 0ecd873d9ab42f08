// Package server exposes the orchestrator, the role agents and the
// conversation store over HTTP. Runs stream their events as server-sent
// events; everything else is JSON.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/scout/pkg/agent"
	"github.com/entrhq/scout/pkg/agent/compaction"
	"github.com/entrhq/scout/pkg/agent/orchestrator"
	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/conversation"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/tokenizer"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/tools/browser"
	"github.com/entrhq/scout/pkg/tools/session"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupInterval = time.Minute
)

// Server serves the scout HTTP API.
type Server struct {
	store     conversation.Store
	recorder  *conversation.Recorder
	router    *llm.Router
	tools     *tools.ToolSet
	browser   *browser.SessionManager
	orch      config.OrchestratorConfig
	cfg       config.ServerConfig
	counter   *tokenizer.Tokenizer
	metrics   *orchestrator.Metrics
	gatherer  prometheus.Gatherer
	logger    *logging.Logger
	version   string
	roles     agent.Roles
	compactor *compaction.Compactor
}

// Option configures a Server.
type Option func(*Server)

// WithTools sets the capability tools offered to the doer and the role
// agents. The session document tools are always added.
func WithTools(ts *tools.ToolSet) Option {
	return func(s *Server) { s.tools = ts }
}

// WithBrowser sets the browser session manager. Clearing a conversation
// closes its browser session.
func WithBrowser(m *browser.SessionManager) Option {
	return func(s *Server) { s.browser = m }
}

// WithOrchestratorConfig sets the step budgets and compaction settings.
func WithOrchestratorConfig(cfg config.OrchestratorConfig) Option {
	return func(s *Server) { s.orch = cfg }
}

// WithServerConfig sets the listen address, CORS origins and heartbeat.
func WithServerConfig(cfg config.ServerConfig) Option {
	return func(s *Server) { s.cfg = cfg }
}

// WithMetrics sets the orchestrator metrics and the gatherer served on
// /metrics.
func WithMetrics(m *orchestrator.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server over store. Role models are resolved through router.
func New(store conversation.Store, router *llm.Router, opts ...Option) *Server {
	defaults := config.DefaultConfig()
	s := &Server{
		store:    store,
		router:   router,
		tools:    tools.NewToolSet(),
		orch:     defaults.Orchestrator,
		cfg:      defaults.Server,
		counter:  tokenizer.New(),
		gatherer: prometheus.DefaultGatherer,
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewLogger("server")
	}
	s.recorder = conversation.NewRecorder(store, s.logger)
	s.compactor = compaction.NewCompactor(s.orch.KeepToolOutputs, s.counter)

	common := []agent.AgentOption{
		agent.WithTools(s.toolSet()),
		agent.WithMaxSteps(s.orch.DoerMaxSteps),
		agent.WithSessionContext(agent.SessionDocuments(store, conversation.DefaultKey)),
	}
	s.roles = agent.Roles{
		Explorer: agent.ExplorerAgent(router.For(llm.RoleExplorer), common...),
		Tester:   agent.TesterAgent(router.For(llm.RoleTester), common...),
	}
	return s
}

// toolSet returns the capability tools plus the session document tools.
// The documents live on the default key so every conversation shares them.
func (s *Server) toolSet() *tools.ToolSet {
	return s.tools.Merge(session.NewToolSet(s.store, conversation.DefaultKey))
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(tracing)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id", "traceparent"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/thinker", s.handleThinker)
		r.Post("/chat", s.handleChat)

		r.Get("/conversation", s.handleGetConversation)
		r.Delete("/conversation", s.handleClearConversation)

		r.Get("/session", s.handleGetSession)
		r.Post("/session", s.handleUpdateSession)
		r.Delete("/session", s.handleResetSession)
	})

	return r
}

// ListenAndServe serves until ctx is done and then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.browser != nil {
		go s.browser.RunCleanup(ctx, cleanupInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "scout",
		"version": s.version,
	})
}
