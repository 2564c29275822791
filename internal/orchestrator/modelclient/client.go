// Package modelclient implements a non-streaming client for the local,
// Ollama-shaped chat completion endpoint the orchestrator consults.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/brightloop/opsmesh/pkg/models"
)

// Client calls POST /api/chat with stream:false and decodes the single
// resulting object, unlike a streaming NDJSON provider.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	defaultModel string
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// New builds a Client.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
	}
}

// ToolCall is one tool invocation the model requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Result is the model's reply to one chat request.
type Result struct {
	Model     string
	Content   string
	ToolCalls []ToolCall
}

// ChatRequest is one non-streaming completion request.
type ChatRequest struct {
	Model       string
	Messages    []models.Message
	Tools       []openai.Tool
	Temperature float64
	MaxTokens   int
}

// Chat sends req to the model endpoint and returns its single reply. Unlike
// a streaming provider, this issues exactly one request and decodes exactly
// one JSON object from the response body.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*Result, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		return nil, fmt.Errorf("modelclient: model is required")
	}

	payload := chatRequest{
		Model:    model,
		Stream:   false,
		Messages: toWireMessages(req.Messages),
		Tools:    req.Tools,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("modelclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("modelclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("modelclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("modelclient: model endpoint status %d: %s", resp.StatusCode, string(errBody))
	}

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("modelclient: decode response: %w", err)
	}
	if wire.Message == nil {
		// The endpoint answered but produced no message; callers fall back
		// to their fixed apology reply.
		return nil, nil
	}

	toolCalls := make([]ToolCall, 0, len(wire.Message.ToolCalls))
	for _, tc := range wire.Message.ToolCalls {
		args, err := normalizeArguments(tc.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("modelclient: tool call %q arguments: %w", tc.Function.Name, err)
		}
		toolCalls = append(toolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	return &Result{Model: wire.Model, Content: wire.Message.Content, ToolCalls: toolCalls}, nil
}

// Capabilities queries GET /api/tags for the set of models the endpoint
// currently serves.
func (c *Client) Capabilities(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(wire.Models))
	for _, m := range wire.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// normalizeArguments accepts a tool call's arguments as either a JSON object
// or a JSON-encoded string wrapping one, since the model endpoint may send
// either shape.
func normalizeArguments(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("{}"), nil
	}
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, err
		}
		if strings.TrimSpace(inner) == "" {
			return json.RawMessage("{}"), nil
		}
		return json.RawMessage(inner), nil
	}
	return trimmed, nil
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []wireMessage  `json:"messages"`
	Tools    []openai.Tool  `json:"tools,omitempty"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Message *wireMessage `json:"message"`
	Done    bool         `json:"done"`
}

type wireToolCall struct {
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func toWireMessages(messages []models.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Content}
		if len(m.ToolCalls) > 0 {
			wm.ToolCalls = make([]wireToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				args := tc.Input
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				wm.ToolCalls[i] = wireToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: wireToolFunction{
						Name:      tc.Name,
						Arguments: args,
					},
				}
			}
		}
		out = append(out, wm)
	}
	return out
}
