package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/volcengine/veadk-go/apps"
	"github.com/volcengine/veadk-go/apps/a2a_app"
	"google.golang.org/adk/agent"

	"github.com/tutoria/tutor-relay/internal/a2a"
	"github.com/tutoria/tutor-relay/internal/config"
	"github.com/tutoria/tutor-relay/internal/gemini"
	"github.com/tutoria/tutor-relay/internal/proxy"
	"github.com/tutoria/tutor-relay/internal/relay"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	slog.Info("starting tutor-relay",
		"listen", cfg.ListenAddr,
		"gemini_base_url", cfg.GeminiBaseURL,
		"model", cfg.GeminiModel,
		"partial_json", cfg.PartialJSON.String(),
		"a2a_enabled", cfg.A2AEnabled,
	)
	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY is not set; chat requests will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rl := relay.New(gemini.NewClient(cfg.GeminiConfig()), cfg.RelayOptions())

	// Always start the relay server.
	srv := proxy.New(cfg, rl)
	proxyErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			proxyErr <- err
		}
	}()

	// Optionally start the A2A server.
	a2aErr := make(chan error, 1)
	if cfg.A2AEnabled {
		tutorAgent, err := a2a.New(a2a.AgentConfig{
			Name:        cfg.AgentName,
			Description: cfg.AgentDesc,
			Relay:       rl,
		})
		if err != nil {
			slog.Error("failed to create A2A agent", "error", err)
			os.Exit(1)
		}

		slog.Info("starting A2A server", "port", cfg.A2APort, "agent_name", cfg.AgentName)

		inner := a2a_app.NewAgentkitA2AServerApp(
			apps.DefaultApiConfig().SetPort(cfg.A2APort),
		)
		wrapped := &loggingApp{BasicApp: inner}

		go func() {
			if err := wrapped.Run(ctx, &apps.RunConfig{
				AgentLoader: agent.NewSingleLoader(tutorAgent),
			}); err != nil {
				a2aErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("relay shutdown error", "error", err)
		}
	case err := <-proxyErr:
		slog.Error("relay server error", "error", err)
		os.Exit(1)
	case err := <-a2aErr:
		slog.Error("A2A server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// loggingApp wraps a BasicApp and installs a request logging middleware on
// the Gorilla mux router the A2A app serves from.
type loggingApp struct {
	apps.BasicApp
}

// Run overrides the embedded Run so that apps.Run receives `w` as the app
// argument; otherwise SetupRouters would be called on the inner app and the
// middleware would never be registered.
func (w *loggingApp) Run(ctx context.Context, config *apps.RunConfig) error {
	return apps.Run(ctx, config, w)
}

func (w *loggingApp) SetupRouters(router *mux.Router, config *apps.RunConfig) error {
	if err := w.BasicApp.SetupRouters(router, config); err != nil {
		return err
	}
	router.Use(a2aLogMiddleware)
	return nil
}

func a2aLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("a2a request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
