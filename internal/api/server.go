// Package api provides the HTTP server for HeartLink: the streaming chat
// endpoint, account reads, the live credit feed, and operational endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/heartlink/heartlink/internal/app/turn"
	"github.com/heartlink/heartlink/internal/domain"
)

// Server is the HeartLink HTTP API server.
type Server struct {
	orch     *turn.Orchestrator
	identity domain.Identity
	accounts domain.AccountStore
	turns    domain.TurnStore

	hub            *CreditsHub
	metricsEnabled bool
	log            *zap.Logger
}

// NewServer creates a new API server.
func NewServer(orch *turn.Orchestrator, identity domain.Identity, accounts domain.AccountStore, turns domain.TurnStore, log *zap.Logger) *Server {
	return &Server{
		orch:     orch,
		identity: identity,
		accounts: accounts,
		turns:    turns,
		log:      log.Named("api"),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetCreditsHub sets the live credit-event SSE hub.
func (s *Server) SetCreditsHub(h *CreditsHub) { s.hub = h }

// CreditsHub returns the live hub (for wiring the orchestrator notifier).
func (s *Server) CreditsHub() *CreditsHub { return s.hub }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/account", s.handleAccount)
		r.Get("/account/history", s.handleHistory)
		if s.hub != nil {
			r.Get("/credits/live", s.hub.HandleCreditsSSE)
		}
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// resolveCredential pulls the identity credential from the Authorization
// header (Bearer) or the token query parameter and resolves it.
func (s *Server) resolveCredential(r *http.Request) (string, error) {
	cred := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		cred = auth[7:]
	}
	if cred == "" {
		return "", domain.ErrCredentialInvalid
	}
	return s.identity.Resolve(cred)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for the web front end.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "X-Credits-Cost, X-Credits-Left, X-Night-Surcharge")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
