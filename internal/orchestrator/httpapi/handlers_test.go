package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brightloop/opsmesh/internal/config"
	"github.com/brightloop/opsmesh/internal/observability"
	"github.com/brightloop/opsmesh/internal/orchestrator/convstore"
	"github.com/brightloop/opsmesh/internal/orchestrator/modelclient"
	"github.com/brightloop/opsmesh/internal/orchestrator/toolclient"
	"github.com/brightloop/opsmesh/internal/orchestrator/turnrunner"
	"github.com/brightloop/opsmesh/pkg/models"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error"})
}

func newTestHandlers(t *testing.T, modelURL string) (*Handlers, *convstore.Store) {
	t.Helper()
	store := convstore.New()
	model := modelclient.New(modelclient.Config{BaseURL: modelURL, DefaultModel: "m"})
	tools := toolclient.New(toolclient.Config{BaseURL: "http://unused"})
	runner := turnrunner.New(store, model, tools, testLogger(), nil, turnrunner.Config{})
	handlers := NewHandlers(runner, store, model, testLogger(), nil, config.OrchestratorConfig{
		ToolsEnabled: true, DefaultModel: "m", MaxCallsPerTurn: 5,
	}, "test")
	return handlers, store
}

func TestMessageRequiresMessageField(t *testing.T) {
	handlers, _ := newTestHandlers(t, "http://unused")
	req := httptest.NewRequest(http.MethodPost, "/api/chat/message", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	handlers.Message(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMessageHappyPath(t *testing.T) {
	modelServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "hi there"},
			"done":    true,
		})
	}))
	defer modelServer.Close()

	handlers, store := newTestHandlers(t, modelServer.URL)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/message", bytes.NewBufferString(`{"message":"hello"}`))
	rec := httptest.NewRecorder()
	handlers.Message(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp turnrunner.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message.Content != "hi there" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if store.Count() != 1 {
		t.Errorf("store.Count() = %d, want 1", store.Count())
	}
}

func TestHistoryAndClearAndConversations(t *testing.T) {
	handlers, store := newTestHandlers(t, "http://unused")
	store.Append("c1", models.Message{Role: models.RoleUser, Content: "hi"})

	req := httptest.NewRequest(http.MethodGet, "/api/chat/conversation/c1/history", nil)
	req.SetPathValue("id", "c1")
	rec := httptest.NewRecorder()
	handlers.History(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/chat/conversations", nil)
	listRec := httptest.NewRecorder()
	handlers.Conversations(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("status = %d", listRec.Code)
	}

	clearReq := httptest.NewRequest(http.MethodDelete, "/api/chat/conversation/c1", nil)
	clearReq.SetPathValue("id", "c1")
	clearRec := httptest.NewRecorder()
	handlers.ClearConversation(clearRec, clearReq)
	if clearRec.Code != http.StatusOK {
		t.Fatalf("status = %d", clearRec.Code)
	}
	if store.Exists("c1") {
		t.Error("ClearConversation should remove the conversation")
	}
}

func TestCapabilitiesAndPing(t *testing.T) {
	handlers, _ := newTestHandlers(t, "http://unused")

	capReq := httptest.NewRequest(http.MethodGet, "/api/chat/capabilities", nil)
	capRec := httptest.NewRecorder()
	handlers.Capabilities(capRec, capReq)
	var caps map[string]any
	json.Unmarshal(capRec.Body.Bytes(), &caps)
	if caps["default_model"] != "m" {
		t.Errorf("default_model = %v, want m", caps["default_model"])
	}

	pingReq := httptest.NewRequest(http.MethodGet, "/api/chat/ping", nil)
	pingRec := httptest.NewRecorder()
	handlers.Ping(pingRec, pingReq)
	if pingRec.Code != http.StatusOK {
		t.Errorf("status = %d", pingRec.Code)
	}
}
