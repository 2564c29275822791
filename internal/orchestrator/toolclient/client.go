// Package toolclient wraps the Operations Service's unary endpoint as the
// orchestrator's tool-invocation boundary: timeout, fixed-delay retry on
// transport failures, and caller-path normalization.
package toolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/opsmesh/pkg/protocol"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	HomeDir    string
}

// Client dispatches one tool call per call to the Operations Service's
// unary endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	homeDir    string
}

// New builds a Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		timeout:    timeout,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		homeDir:    cfg.HomeDir,
	}
}

// Outcome is the classified result of one tool call.
type Outcome struct {
	Success bool
	Result  any
	Error   string
}

// Call normalizes params, issues one stream=false OS request for
// operation, and retries on transport-level failures only. A well-formed
// error envelope is returned as a failed Outcome without retry.
func (c *Client) Call(ctx context.Context, operation string, params map[string]any) Outcome {
	normalized := c.normalizeParams(params)

	var lastErr error
	attempts := c.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return Outcome{Success: false, Error: ctx.Err().Error()}
			}
		}

		env, err := c.doRequest(ctx, operation, normalized)
		if err != nil {
			lastErr = err
			continue
		}
		return classify(env)
	}
	return Outcome{Success: false, Error: fmt.Sprintf("tool call failed after %d attempts: %v", attempts, lastErr)}
}

func (c *Client) doRequest(ctx context.Context, operation string, params map[string]any) (protocol.Envelope, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := protocol.Envelope{
		Type:      protocol.TypeRequest,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Version:   protocol.ProtocolVersion,
		Operation: operation,
		Params:    params,
		Stream:    false,
	}
	req.RequestID = req.ID

	body, err := json.Marshal(req)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/api/mcp/request", bytes.NewReader(body))
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("transport failure: %w", err)
	}
	defer resp.Body.Close()

	var env protocol.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("decode response: %w", err)
	}
	return env, nil
}

func classify(env protocol.Envelope) Outcome {
	if env.Type == protocol.TypeResponse && env.Status == protocol.StatusSuccess {
		return Outcome{Success: true, Result: env.Result}
	}
	if env.Type == protocol.TypeError {
		return Outcome{Success: false, Error: env.ErrorMessage}
	}
	return Outcome{Success: false, Error: fmt.Sprintf("unexpected envelope status %q", env.Status)}
}

// normalizeParams rewrites any "path" or "working_directory" string value
// so that a model operating on
// its caller's native home directory does not need to know the true home
// the orchestrator process runs under.
func (c *Client) normalizeParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == "path" || k == "working_directory" {
			if s, ok := v.(string); ok {
				out[k] = c.normalizePath(s)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func (c *Client) normalizePath(path string) string {
	if c.homeDir == "" {
		return path
	}

	switch {
	case path == "~":
		return c.homeDir
	case strings.HasPrefix(path, "~/"):
		return c.homeDir + path[1:]
	case path == "/home" || path == "/home/":
		return c.homeDir
	case strings.HasPrefix(path, "/home/"):
		rest := strings.SplitN(path[len("/home/"):], "/", 2)
		if len(rest) == 2 {
			return c.homeDir + "/" + rest[1]
		}
		return c.homeDir
	default:
		return path
	}
}
