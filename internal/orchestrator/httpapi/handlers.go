// Package httpapi exposes the orchestrator's Turn Runner over HTTP:
// one endpoint to process a chat turn, plus conversation management,
// health, and capabilities endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/brightloop/opsmesh/internal/config"
	"github.com/brightloop/opsmesh/internal/observability"
	"github.com/brightloop/opsmesh/internal/orchestrator/convstore"
	"github.com/brightloop/opsmesh/internal/orchestrator/modelclient"
	"github.com/brightloop/opsmesh/internal/orchestrator/turnrunner"
)

// Handlers bundles the orchestrator's HTTP handlers.
type Handlers struct {
	runner  *turnrunner.Runner
	store   *convstore.Store
	model   *modelclient.Client
	logger  *observability.Logger
	metrics *observability.Metrics
	cfg     config.OrchestratorConfig
	version string
}

// NewHandlers builds the orchestrator handler set.
func NewHandlers(runner *turnrunner.Runner, store *convstore.Store, model *modelclient.Client, logger *observability.Logger, metrics *observability.Metrics, cfg config.OrchestratorConfig, version string) *Handlers {
	return &Handlers{runner: runner, store: store, model: model, logger: logger, metrics: metrics, cfg: cfg, version: version}
}

func (h *Handlers) recordHTTP(method, path string, status int, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordHTTPRequest(method, path, http.StatusText(status), time.Since(start))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// messageRequest is the decoded body of POST /api/chat/message.
type messageRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id"`
	Model          string   `json:"model"`
	EnableTools    *bool    `json:"enable_tools"`
	Temperature    *float64 `json:"temperature"`
	MaxTokens      *int     `json:"max_tokens"`
}

// Message implements POST /api/chat/message: decode the request, run one
// turn, and return the assistant's response.
func (h *Handlers) Message(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const path = "/api/chat/message"

	var body messageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body: " + err.Error()})
		h.recordHTTP(r.Method, path, http.StatusBadRequest, start)
		return
	}
	if body.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		h.recordHTTP(r.Method, path, http.StatusBadRequest, start)
		return
	}

	ctx := r.Context()
	if body.ConversationID != "" {
		ctx = observability.AddConversationID(ctx, body.ConversationID)
	}

	toolsEnabled := h.cfg.ToolsEnabled
	if body.EnableTools != nil {
		toolsEnabled = toolsEnabled && *body.EnableTools
	}

	resp, err := h.runner.Run(ctx, turnrunner.Request{
		Message:        body.Message,
		ConversationID: body.ConversationID,
		Model:          body.Model,
		Temperature:    body.Temperature,
		MaxTokens:      body.MaxTokens,
		ToolsEnabled:   &toolsEnabled,
	})
	if err != nil {
		h.logger.Error(ctx, "turn failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		h.recordHTTP(r.Method, path, http.StatusInternalServerError, start)
		return
	}

	writeJSON(w, http.StatusOK, resp)
	h.recordHTTP(r.Method, path, http.StatusOK, start)
}

// History implements GET /api/chat/conversation/{id}/history.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.PathValue("id")
	history := h.store.GetHistory(id)
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "messages": history})
	h.recordHTTP(r.Method, "/api/chat/conversation/{id}/history", http.StatusOK, start)
}

// ClearConversation implements DELETE /api/chat/conversation/{id}.
func (h *Handlers) ClearConversation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.PathValue("id")
	h.store.Clear(id)
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "cleared": true})
	h.recordHTTP(r.Method, "/api/chat/conversation/{id}", http.StatusOK, start)
}

// Conversations implements GET /api/chat/conversations.
func (h *Handlers) Conversations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_ids": h.store.ListIDs(),
		"count":            h.store.Count(),
	})
	h.recordHTTP(r.Method, "/api/chat/conversations", http.StatusOK, start)
}

// Health implements GET /api/chat/health: reports service liveness and
// whether the configured model endpoint is currently reachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	modelReachable := true
	if _, err := h.model.Capabilities(ctx); err != nil {
		modelReachable = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "UP",
		"service":         "opsmesh-orchestrator",
		"version":         h.version,
		"model_reachable": modelReachable,
	})
	h.recordHTTP(r.Method, "/api/chat/health", http.StatusOK, start)
}

// Capabilities implements GET /api/chat/capabilities. Available models come
// from the model endpoint's tags listing; if that probe fails the list is
// empty rather than the whole endpoint erroring.
func (h *Handlers) Capabilities(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	available, err := h.model.Capabilities(ctx)
	if err != nil {
		available = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tools_enabled":      h.cfg.ToolsEnabled,
		"default_model":      h.cfg.DefaultModel,
		"max_calls_per_turn": h.cfg.MaxCallsPerTurn,
		"available_models":   available,
	})
	h.recordHTTP(r.Method, "/api/chat/capabilities", http.StatusOK, start)
}

// Ping implements GET /api/chat/ping.
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeJSON(w, http.StatusOK, map[string]string{"pong": "true"})
	h.recordHTTP(r.Method, "/api/chat/ping", http.StatusOK, start)
}
