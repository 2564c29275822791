package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/brightloop/opsmesh/internal/ops/dispatch"
	"github.com/brightloop/opsmesh/pkg/protocol"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	handlers := NewHandlers(dispatch.New(nil, nil), nil, nil, "test")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/mcp/request", handlers.Unary)
	mux.HandleFunc("POST /api/mcp/stream", handlers.NDJSON)
	mux.HandleFunc("POST /api/mcp/sse-stream", handlers.SSE)
	mux.HandleFunc("GET /api/mcp/operations", handlers.Operations)
	mux.HandleFunc("GET /api/mcp/health", handlers.Health)
	mux.HandleFunc("/ws/mcp", handlers.WebSocket)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func postEnvelope(t *testing.T, url string, req protocol.Envelope) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUnaryRoundTrip(t *testing.T) {
	server := newTestServer(t)
	dir := t.TempDir()

	resp := postEnvelope(t, server.URL+"/api/mcp/request", protocol.Envelope{
		Type:      protocol.TypeRequest,
		ID:        "req-1",
		Operation: "create_file",
		Params:    map[string]any{"path": dir + "/a.txt", "content": "hi"},
	})

	var env protocol.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != protocol.TypeResponse || env.Status != protocol.StatusSuccess {
		t.Fatalf("envelope = %+v, want success response", env)
	}
	if env.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", env.RequestID)
	}
	if !env.StreamComplete {
		t.Error("non-streaming response must carry stream_complete=true")
	}
}

func TestUnaryStreamingRequestReturnsPlaceholder(t *testing.T) {
	server := newTestServer(t)

	resp := postEnvelope(t, server.URL+"/api/mcp/request", protocol.Envelope{
		Type:      protocol.TypeRequest,
		ID:        "req-1",
		Operation: "list_directory",
		Params:    map[string]any{"path": "."},
		Stream:    true,
	})

	var env protocol.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Status != protocol.StatusStreaming || env.StreamComplete {
		t.Errorf("envelope = %+v, want streaming placeholder", env)
	}
}

func TestUnaryRejectsNonRequestEnvelope(t *testing.T) {
	server := newTestServer(t)

	resp := postEnvelope(t, server.URL+"/api/mcp/request", protocol.Envelope{
		Type: protocol.TypeResponse,
		ID:   "req-1",
	})

	var env protocol.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != protocol.TypeError || env.ErrorCode != protocol.ErrRequestError {
		t.Errorf("envelope = %+v, want REQUEST_ERROR", env)
	}
}

func TestNDJSONStreamingCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a posix printf command")
	}
	server := newTestServer(t)

	resp := postEnvelope(t, server.URL+"/api/mcp/stream", protocol.Envelope{
		Type:      protocol.TypeRequest,
		ID:        "req-1",
		Operation: "execute_command",
		Params:    map[string]any{"command": `printf 'a\nb\nc\n'`},
		Stream:    true,
	})
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q, want application/x-ndjson", ct)
	}

	var chunks []protocol.Envelope
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var env protocol.Envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			t.Fatalf("unmarshal line %q: %v", scanner.Text(), err)
		}
		chunks = append(chunks, env)
	}

	if len(chunks) != 5 {
		t.Fatalf("got %d chunks, want 5 (a, b, c, exit code, sentinel): %+v", len(chunks), chunks)
	}
	for i, want := range []string{"STDOUT: a", "STDOUT: b", "STDOUT: c", "EXIT_CODE: 0"} {
		if chunks[i].Sequence != i+1 {
			t.Errorf("chunk %d sequence = %d, want %d", i, chunks[i].Sequence, i+1)
		}
		if chunks[i].Data != want {
			t.Errorf("chunk %d data = %v, want %q", i, chunks[i].Data, want)
		}
	}
	last := chunks[len(chunks)-1]
	if !last.IsFinal {
		t.Error("last chunk must carry is_final=true")
	}
	for _, c := range chunks {
		if c.RequestID != "req-1" {
			t.Errorf("chunk RequestID = %q, want req-1", c.RequestID)
		}
	}
}

func TestNDJSONStreamEmitsErrorEnvelopeInBand(t *testing.T) {
	server := newTestServer(t)

	resp := postEnvelope(t, server.URL+"/api/mcp/stream", protocol.Envelope{
		Type:      protocol.TypeRequest,
		ID:        "req-1",
		Operation: "read_file",
		Params:    map[string]any{"path": "/no/such/file"},
		Stream:    true,
	})

	var last protocol.Envelope
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if err := json.Unmarshal(scanner.Bytes(), &last); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	}
	if last.Type != protocol.TypeError || last.ErrorCode != protocol.ErrPathNotFound {
		t.Errorf("envelope = %+v, want PATH_NOT_FOUND error", last)
	}
}

func TestSSEStreamFramesNamedEvents(t *testing.T) {
	server := newTestServer(t)
	dir := t.TempDir()
	if err := writeTempFile(dir+"/a.txt", "x"); err != nil {
		t.Fatal(err)
	}

	resp := postEnvelope(t, server.URL+"/api/mcp/sse-stream", protocol.Envelope{
		Type:      protocol.TypeRequest,
		ID:        "req-1",
		Operation: "list_directory",
		Params:    map[string]any{"path": dir},
		Stream:    true,
	})
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (stream-chunk + stream-complete): %v", len(events), events)
	}
	if events[0] != "stream-chunk" || events[1] != "stream-complete" {
		t.Errorf("events = %v, want [stream-chunk stream-complete]", events)
	}
}

func TestOperationsEndpointReturnsCatalog(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/mcp/operations")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Operations []protocol.OperationDescriptor `json:"operations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Operations) != 7 {
		t.Errorf("len(operations) = %d, want 7", len(body.Operations))
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/mcp/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "UP" {
		t.Errorf("status = %v, want UP", body["status"])
	}
}

func TestWebSocketMultiplexesRequests(t *testing.T) {
	server := newTestServer(t)
	dir := t.TempDir()
	if err := writeTempFile(dir+"/a.txt", "hello"); err != nil {
		t.Fatal(err)
	}

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/mcp"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A non-streaming and a streaming request share the session.
	requests := []protocol.Envelope{
		{Type: protocol.TypeRequest, ID: "uni-1", Operation: "read_file",
			Params: map[string]any{"path": dir + "/a.txt"}},
		{Type: protocol.TypeRequest, ID: "stream-1", Operation: "list_directory",
			Params: map[string]any{"path": dir}, Stream: true},
	}
	for _, req := range requests {
		data, err := json.Marshal(req)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	var sawResponse, sawFinal bool
	for !sawResponse || !sawFinal {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal %q: %v", data, err)
		}
		switch {
		case env.RequestID == "uni-1" && env.Type == protocol.TypeResponse:
			sawResponse = true
		case env.RequestID == "stream-1" && env.Type == protocol.TypeStreamChunk && env.IsFinal:
			sawFinal = true
		}
	}
}

func writeTempFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
