package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tutoria/tutor-relay/internal/config"
	"github.com/tutoria/tutor-relay/internal/relay"
)

// ChatPath is the relay endpoint.
const ChatPath = "/tutorChat"

// Server is the relay HTTP server.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server serving rl with the given config.
func New(cfg *config.Config, rl *relay.Relay) *Server {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	var chat http.Handler = relay.NewHandler(rl)
	if cfg.RateLimitRPS > 0 {
		chat = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).middleware(chat)
	}
	// The handler answers preflight and wrong methods itself.
	router.Handle(ChatPath, chat)
	router.Use(corsMiddleware)

	var handler http.Handler = router
	handler = loggingMiddleware(handler)
	handler = recoveryMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.ListenAddr,
			Handler:     handler,
			ReadTimeout: 30 * time.Second,
			// Streams are bounded by the relay's request timeout, not here.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
