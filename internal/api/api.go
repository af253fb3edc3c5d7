// Package api provides HTTP handlers and the main API server logic for the
// money coaching intervention orchestrator.
//
// Every operation executes as an independent, stateless invocation: all
// cross-request session state lives in the store. The API integrates the
// flow, genai, and store modules.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/flow"
	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/genai"
	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/models"
	"github.com/Rohan1028/plaid-test-with-latest-insights-sub000/internal/store"
)

// DefaultAddr is the default API listen address.
const DefaultAddr = ":8080"

// Opts holds configuration for the API server.
type Opts struct {
	Addr string
}

// Option configures API server construction.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the store and orchestrator behind the HTTP handlers.
type Server struct {
	st   store.Store
	orch *flow.Orchestrator
	addr string
}

// NewServer creates an API server. genaiClient may be nil; the orchestrator
// then serves deterministic fallback plans and messages.
func NewServer(st store.Store, genaiClient genai.ClientInterface, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		st:   st,
		orch: flow.NewOrchestrator(st, genaiClient),
		addr: addr,
	}
}

// Handler returns the routed HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/interventions", s.requireAuth(s.interventionsHandler))
	mux.HandleFunc("/api/v1/consent", s.requireAuth(s.consentHandler))
	mux.HandleFunc("/api/v1/session", s.requireAuth(s.sessionActionHandler))
	mux.HandleFunc("/api/v1/session/exit", s.requireAuth(s.exitHandler))
	mux.HandleFunc("/api/v1/session/feedback", s.requireAuth(s.feedbackHandler))
	mux.HandleFunc("/api/v1/session/finalize", s.requireAuth(s.finalizeHandler))
	mux.HandleFunc("/api/v1/session/", s.requireAuth(s.getSessionHandler))
	return mux
}

// Run builds the configured store and GenAI client, then serves the API. A
// missing or invalid OpenAI configuration is not fatal: the service runs
// with deterministic fallbacks only.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	var genaiClient genai.ClientInterface
	if client, err := genai.NewClient(genaiOpts...); err != nil {
		slog.Warn("GenAI client unavailable, using deterministic fallbacks only", "error", err)
	} else {
		genaiClient = client
	}

	srv := NewServer(st, genaiClient, apiOpts...)
	slog.Info("moneycoach API running", "addr", srv.addr)
	return http.ListenAndServe(srv.addr, srv.Handler())
}

// authedHandler is an HTTP handler with the resolved caller identity.
type authedHandler func(w http.ResponseWriter, r *http.Request, user *models.User)

// requireAuth resolves the bearer token to a user and rejects the request
// otherwise. All downstream storage lookups are scoped by the resolved user
// id, so a valid token can never reach another user's sessions.
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			slog.Warn("requireAuth: missing bearer token", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Missing or invalid authorization"))
			return
		}
		user, err := s.st.GetUserByToken(token)
		if err != nil {
			slog.Error("requireAuth: token lookup failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to verify identity"))
			return
		}
		if user == nil {
			slog.Warn("requireAuth: unknown token", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Missing or invalid authorization"))
			return
		}
		next(w, r, user)
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
