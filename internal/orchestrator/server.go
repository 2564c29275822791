// Package orchestrator wires the conversation store, model client, tool
// client, and turn runner into one HTTP server exposing the chat API.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightloop/opsmesh/internal/config"
	"github.com/brightloop/opsmesh/internal/httpmw"
	"github.com/brightloop/opsmesh/internal/observability"
	"github.com/brightloop/opsmesh/internal/orchestrator/convstore"
	"github.com/brightloop/opsmesh/internal/orchestrator/httpapi"
	"github.com/brightloop/opsmesh/internal/orchestrator/modelclient"
	"github.com/brightloop/opsmesh/internal/orchestrator/toolclient"
	"github.com/brightloop/opsmesh/internal/orchestrator/turnrunner"
)

// Version is injected by the opsmesh binary at build time.
var Version = "dev"

// Server is the Orchestrator's HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *observability.Logger
}

// NewServer builds a Server ready to Start.
func NewServer(cfg config.OrchestratorConfig, logger *observability.Logger, metrics *observability.Metrics) *Server {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}

	store := convstore.New()
	model := modelclient.New(modelclient.Config{
		BaseURL:      cfg.ModelBaseURL,
		DefaultModel: cfg.DefaultModel,
	})
	tools := toolclient.New(toolclient.Config{
		BaseURL:    cfg.OpsBaseURL,
		Timeout:    cfg.ToolTimeout,
		MaxRetries: cfg.ToolMaxRetries,
		RetryDelay: cfg.ToolRetryDelay,
		HomeDir:    homeDir,
	})
	runner := turnrunner.New(store, model, tools, logger, metrics, turnrunner.Config{
		MaxCallsPerTurn:    cfg.MaxCallsPerTurn,
		DefaultTemperature: cfg.Temperature,
		DefaultMaxTokens:   cfg.MaxTokens,
	})
	handlers := httpapi.NewHandlers(runner, store, model, logger, metrics, cfg, Version)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/message", handlers.Message)
	mux.HandleFunc("GET /api/chat/conversation/{id}/history", handlers.History)
	mux.HandleFunc("DELETE /api/chat/conversation/{id}", handlers.ClearConversation)
	mux.HandleFunc("GET /api/chat/conversations", handlers.Conversations)
	mux.HandleFunc("GET /api/chat/health", handlers.Health)
	mux.HandleFunc("GET /api/chat/capabilities", handlers.Capabilities)
	mux.HandleFunc("GET /api/chat/ping", handlers.Ping)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler: httpmw.Chain(mux, httpmw.RequestID(), httpmw.AccessLog(logger)),
		},
		logger: logger,
	}
}

// Start runs the HTTP server until ctx is cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts the server down, bounded by ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
