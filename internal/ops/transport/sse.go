package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brightloop/opsmesh/pkg/protocol"
)

// SSE implements POST /api/mcp/sse-stream: the same stream-chunk sequence as
// NDJSON, framed as named server-sent events whose event field is one of
// {response, stream-chunk, stream-complete, error}.
func (h *Handlers) SSE(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	req, err := decodeRequest(r)
	if err != nil {
		writeSSEEvent(w, "error", malformedRequestEnvelope(err))
		h.recordHTTP(r.Method, "/api/mcp/sse-stream", http.StatusBadRequest, start)
		return
	}

	flusher, _ := w.(http.Flusher)
	for env := range h.dispatcher.DispatchStream(r.Context(), req) {
		event := sseEventName(env)
		writeSSEEvent(w, event, env)
		if flusher != nil {
			flusher.Flush()
		}
	}
	h.recordHTTP(r.Method, "/api/mcp/sse-stream", http.StatusOK, start)
}

func sseEventName(env protocol.Envelope) string {
	switch env.Type {
	case protocol.TypeError:
		return "error"
	case protocol.TypeResponse:
		return "response"
	case protocol.TypeStreamChunk:
		if env.IsFinal {
			return "stream-complete"
		}
		return "stream-chunk"
	default:
		return "stream-chunk"
	}
}

func writeSSEEvent(w http.ResponseWriter, event string, env any) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
