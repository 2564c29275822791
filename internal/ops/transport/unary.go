package transport

import (
	"encoding/json"
	"net/http"
	"time"
)

// Unary implements POST /api/mcp/request: one request envelope in, one
// response-or-error envelope out. A streaming request receives the
// streaming placeholder and nothing further; the caller must switch to
// /api/mcp/stream, /api/mcp/sse-stream, or the WebSocket endpoint.
func (h *Handlers) Unary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")

	req, err := decodeRequest(r)
	if err != nil {
		writeEnvelope(w, malformedRequestEnvelope(err))
		h.recordHTTP(r.Method, "/api/mcp/request", http.StatusBadRequest, start)
		return
	}

	resp := h.dispatcher.Dispatch(r.Context(), req)
	writeEnvelope(w, resp)
	h.recordHTTP(r.Method, "/api/mcp/request", http.StatusOK, start)
}

func writeEnvelope(w http.ResponseWriter, env any) {
	_ = json.NewEncoder(w).Encode(env)
}
