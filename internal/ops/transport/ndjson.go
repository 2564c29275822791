package transport

import (
	"encoding/json"
	"net/http"
	"time"
)

// NDJSON implements POST /api/mcp/stream: one request envelope in, a
// newline-delimited sequence of stream-chunk (or one error) envelopes out,
// terminating in a chunk with is_final=true.
func (h *Handlers) NDJSON(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/x-ndjson")

	req, err := decodeRequest(r)
	if err != nil {
		writeNDJSONLine(w, malformedRequestEnvelope(err))
		h.recordHTTP(r.Method, "/api/mcp/stream", http.StatusBadRequest, start)
		return
	}

	flusher, _ := w.(http.Flusher)
	for env := range h.dispatcher.DispatchStream(r.Context(), req) {
		writeNDJSONLine(w, env)
		if flusher != nil {
			flusher.Flush()
		}
	}
	h.recordHTTP(r.Method, "/api/mcp/stream", http.StatusOK, start)
}

func writeNDJSONLine(w http.ResponseWriter, env any) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	w.Write(data)
	w.Write([]byte("\n"))
}
