package opsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/brightloop/opsmesh/internal/ops/dispatch"
	"github.com/brightloop/opsmesh/internal/ops/transport"
	"github.com/brightloop/opsmesh/pkg/protocol"
)

// newTestService runs the real dispatcher behind the real transports, so the
// client is exercised against the exact wire behavior the service produces.
func newTestService(t *testing.T) *httptest.Server {
	t.Helper()
	handlers := transport.NewHandlers(dispatch.New(nil, nil), nil, nil, "test")

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

func TestExecuteRoundTrip(t *testing.T) {
	server := newTestService(t)
	c := New(server.URL)
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")

	env, err := c.Execute(context.Background(), "create_file", map[string]any{
		"path": path, "content": "hello",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if env.Type != protocol.TypeResponse || env.Status != protocol.StatusSuccess {
		t.Fatalf("envelope = %+v, want success response", env)
	}

	readEnv, err := c.Execute(context.Background(), "read_file", map[string]any{"path": path})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result, ok := readEnv.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type = %T, want map", readEnv.Result)
	}
	if result["content"] != "hello" {
		t.Errorf("content = %v, want hello", result["content"])
	}
}

func TestExecuteReturnsErrorEnvelopeWithoutTransportError(t *testing.T) {
	server := newTestService(t)
	c := New(server.URL)

	env, err := c.Execute(context.Background(), "read_file", map[string]any{"path": "/no/such/file"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if env.Type != protocol.TypeError || env.ErrorCode != protocol.ErrPathNotFound {
		t.Errorf("envelope = %+v, want PATH_NOT_FOUND error", env)
	}
}

func TestStreamCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a posix printf command")
	}
	server := newTestService(t)
	c := New(server.URL)

	ch, err := c.Stream(context.Background(), "execute_command", map[string]any{
		"command": `printf 'a\nb\n'`,
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var chunks []protocol.Envelope
	for env := range ch {
		chunks = append(chunks, env)
	}
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4 (a, b, exit code, sentinel): %+v", len(chunks), chunks)
	}
	if chunks[0].Data != "STDOUT: a" || chunks[1].Data != "STDOUT: b" {
		t.Errorf("unexpected chunk data: %+v", chunks[:2])
	}
	if chunks[2].Data != "EXIT_CODE: 0" {
		t.Errorf("chunk 3 data = %v, want EXIT_CODE: 0", chunks[2].Data)
	}
	if !chunks[3].IsFinal {
		t.Error("last chunk must carry is_final=true")
	}
	for i, env := range chunks[:3] {
		if env.Sequence != i+1 {
			t.Errorf("chunk %d sequence = %d, want %d", i, env.Sequence, i+1)
		}
	}
}

func TestStreamSurfacesErrorEnvelopeInBand(t *testing.T) {
	server := newTestService(t)
	c := New(server.URL)

	ch, err := c.Stream(context.Background(), "read_file", map[string]any{"path": "/no/such/file"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var last protocol.Envelope
	for env := range ch {
		last = env
	}
	if last.Type != protocol.TypeError || last.ErrorCode != protocol.ErrPathNotFound {
		t.Errorf("envelope = %+v, want PATH_NOT_FOUND error", last)
	}
}

func TestStreamSSEListDirectory(t *testing.T) {
	server := newTestService(t)
	c := New(server.URL)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ch, err := c.StreamSSE(context.Background(), "list_directory", map[string]any{"path": dir})
	if err != nil {
		t.Fatalf("StreamSSE: %v", err)
	}

	var chunks []protocol.Envelope
	for env := range ch {
		chunks = append(chunks, env)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d envelopes, want 2 (descriptor + sentinel): %+v", len(chunks), chunks)
	}
	if !chunks[1].IsFinal {
		t.Error("last envelope must carry is_final=true")
	}
}

func TestOperationsCatalog(t *testing.T) {
	server := newTestService(t)
	c := New(server.URL)

	ops, err := c.Operations(context.Background())
	if err != nil {
		t.Fatalf("Operations: %v", err)
	}
	if len(ops) != 7 {
		t.Errorf("len(operations) = %d, want 7", len(ops))
	}
}

func TestHealth(t *testing.T) {
	server := newTestService(t)
	c := New(server.URL)

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "UP" {
		t.Errorf("Status = %q, want UP", h.Status)
	}
}

func TestSessionMixesUnaryAndStreaming(t *testing.T) {
	server := newTestService(t)
	c := New(server.URL)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	session, err := c.DialSession(context.Background())
	if err != nil {
		t.Fatalf("DialSession: %v", err)
	}
	defer session.Close()

	readID, err := session.Send("read_file", map[string]any{"path": dir + "/a.txt"}, false)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	listID, err := session.Send("list_directory", map[string]any{"path": dir}, true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var sawResponse, sawFinal bool
	for !sawResponse || !sawFinal {
		env, err := session.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		switch {
		case env.RequestID == readID && env.Type == protocol.TypeResponse:
			sawResponse = true
		case env.RequestID == listID && env.Type == protocol.TypeStreamChunk && env.IsFinal:
			sawFinal = true
		}
	}
}
