// Package transport exposes the Operations Service's dispatcher over the
// four wire transports the protocol defines: a unary request/response
// endpoint, NDJSON streaming, server-sent events, and a persistent
// WebSocket session.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/opsmesh/internal/observability"
	"github.com/brightloop/opsmesh/internal/ops/dispatch"
	"github.com/brightloop/opsmesh/pkg/protocol"
)

// Handlers bundles the HTTP handlers for every request-response and
// streaming transport, all sharing one Dispatcher.
type Handlers struct {
	dispatcher *dispatch.Dispatcher
	logger     *observability.Logger
	metrics    *observability.Metrics
	version    string
}

// NewHandlers builds the transport handler set.
func NewHandlers(dispatcher *dispatch.Dispatcher, logger *observability.Logger, metrics *observability.Metrics, version string) *Handlers {
	return &Handlers{dispatcher: dispatcher, logger: logger, metrics: metrics, version: version}
}

// decodeRequest parses an inbound request envelope from the HTTP body,
// assigning an id and request_id when the caller omitted them. The type
// tag is checked first; an envelope that is explicitly something other
// than a request is rejected rather than guessed at from its fields.
func decodeRequest(r *http.Request) (protocol.Envelope, error) {
	var req protocol.Envelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return protocol.Envelope{}, err
	}
	return normalizeRequest(req)
}

func normalizeRequest(req protocol.Envelope) (protocol.Envelope, error) {
	if req.Type != "" && req.Type != protocol.TypeRequest {
		return protocol.Envelope{}, fmt.Errorf("unexpected envelope type %q", req.Type)
	}
	req.Type = protocol.TypeRequest
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestID == "" {
		req.RequestID = req.ID
	}
	return req, nil
}

func malformedRequestEnvelope(err error) protocol.Envelope {
	return protocol.NewErrorEnvelope(uuid.NewString(), "", protocol.ErrRequestError, "malformed request: "+err.Error(), nil)
}

func (h *Handlers) recordHTTP(method, path string, status int, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordHTTPRequest(method, path, http.StatusText(status), time.Since(start))
}

// Operations serves the discovery endpoint.
func (h *Handlers) Operations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"operations": dispatch.Catalog()})
	h.recordHTTP(r.Method, "/api/mcp/operations", http.StatusOK, start)
}

// Health serves the liveness endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "UP",
		"service": "opsmesh-operations",
		"version": h.version,
	})
	h.recordHTTP(r.Method, "/api/mcp/health", http.StatusOK, start)
}
