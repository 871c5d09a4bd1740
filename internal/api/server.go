// Package api exposes the assistant over HTTP: session management, message
// runs, the per-session SSE event stream, and the consent reply endpoint.
package api

import (
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/optimnow-labs/finops-assistant/internal/agent"
	"github.com/optimnow-labs/finops-assistant/internal/agui"
	"github.com/optimnow-labs/finops-assistant/internal/config"
	"github.com/optimnow-labs/finops-assistant/internal/consent"
	"github.com/optimnow-labs/finops-assistant/internal/domain"
	"github.com/optimnow-labs/finops-assistant/internal/mcpclient"
	"github.com/optimnow-labs/finops-assistant/internal/observability"
	"github.com/optimnow-labs/finops-assistant/internal/policy"
	"github.com/optimnow-labs/finops-assistant/internal/ratelimit"
)

// ToolRegistry is the registry surface the server reads. *mcpclient.Service
// implements it.
type ToolRegistry interface {
	agent.Registry
	State() domain.RegistryState
	Usable() bool
	ConnectedServers() []string
	DeclaredServers() []mcpclient.ServerDescriptor
}

// Deps carries the server's collaborators. Budget, Metrics and OIDC are
// optional.
type Deps struct {
	Registry   ToolRegistry
	Streamer   agent.MessageStreamer
	Classifier *consent.Classifier
	Guard      *policy.Guard
	Broker     *agui.Broker
	Budget     *ratelimit.UsageBudget
	Metrics    *observability.Metrics
	Logger     *slog.Logger
	OIDC       *oidc.Provider
}

// Server is the HTTP API server for the assistant.
type Server struct {
	cfg        config.Config
	registry   ToolRegistry
	streamer   agent.MessageStreamer
	classifier *consent.Classifier
	guard      *policy.Guard
	broker     *agui.Broker
	bridge     *ConsentBridge
	store      *SessionStore
	budget     *ratelimit.UsageBudget
	metrics    *observability.Metrics
	logger     *slog.Logger

	mux     *http.ServeMux
	handler http.Handler
}

// New creates a Server wired with the given dependencies.
func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		registry:   deps.Registry,
		streamer:   deps.Streamer,
		classifier: deps.Classifier,
		guard:      deps.Guard,
		broker:     deps.Broker,
		bridge:     NewConsentBridge(deps.Broker),
		store:      NewSessionStore(),
		budget:     deps.Budget,
		metrics:    deps.Metrics,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	s.routes()

	var h http.Handler = s.mux
	if deps.OIDC != nil && cfg.OIDCAudience != "" {
		h = oidcAuth(deps.OIDC, cfg.OIDCAudience)(h)
	}
	s.handler = requestID(logging(cors(cfg.CORSOrigins, h)))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/registry", s.handleRegistry)
	s.mux.HandleFunc("GET /api/v1/tools", s.handleListTools)
	s.mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("POST /api/v1/sessions/{id}/messages", s.handlePostMessage)
	s.mux.HandleFunc("GET /api/v1/sessions/{id}/stream", s.handleStream)
	s.mux.HandleFunc("POST /api/v1/sessions/{id}/consent", s.handleConsent)
}
