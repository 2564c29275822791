// Package ops wires the File, Search, and Command engines, the protocol
// dispatcher, and the four transports into one HTTP server.
package ops

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightloop/opsmesh/internal/config"
	"github.com/brightloop/opsmesh/internal/httpmw"
	"github.com/brightloop/opsmesh/internal/observability"
	"github.com/brightloop/opsmesh/internal/ops/dispatch"
	"github.com/brightloop/opsmesh/internal/ops/transport"
)

// Version is injected by the opsmesh binary at build time.
var Version = "dev"

// Server is the Operations Service's HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *observability.Logger
}

// NewServer builds a Server ready to Start. metrics may be nil, in which
// case operation and HTTP metrics are not recorded.
func NewServer(cfg config.OpsConfig, logger *observability.Logger, metrics *observability.Metrics) *Server {
	dispatcher := dispatch.New(metrics, logger).WithCommandTimeout(cfg.CommandTimeout)
	handlers := transport.NewHandlers(dispatcher, logger, metrics, Version)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/mcp/request", handlers.Unary)
	mux.HandleFunc("POST /api/mcp/stream", handlers.NDJSON)
	mux.HandleFunc("POST /api/mcp/sse-stream", handlers.SSE)
	mux.HandleFunc("GET /api/mcp/operations", handlers.Operations)
	mux.HandleFunc("GET /api/mcp/health", handlers.Health)
	mux.HandleFunc("/ws/mcp", handlers.WebSocket)
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
