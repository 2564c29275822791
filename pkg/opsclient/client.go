// Package opsclient is a typed Go client for the Operations Service: the
// unary endpoint, the NDJSON and SSE streaming endpoints, the discovery and
// health endpoints, and the persistent WebSocket session.
package opsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/opsmesh/pkg/protocol"
)

// Client talks to one Operations Service instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, e.g. to set timeouts
// or a proxy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a Client for baseURL, e.g. "http://localhost:8081".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newRequestEnvelope builds a request envelope with a fresh id.
func newRequestEnvelope(operation string, params map[string]any, stream bool) protocol.Envelope {
	id := uuid.NewString()
	return protocol.Envelope{
		Type:      protocol.TypeRequest,
		ID:        id,
		Timestamp: time.Now().UTC(),
		Version:   protocol.ProtocolVersion,
		RequestID: id,
		Operation: operation,
		Params:    params,
		Stream:    stream,
	}
}

// Execute issues one non-streaming operation over the unary endpoint and
// returns the response or error envelope as the service sent it. The
// returned error is non-nil only for transport-level failures; an error
// envelope is a successful round trip.
func (c *Client) Execute(ctx context.Context, operation string, params map[string]any) (protocol.Envelope, error) {
	req := newRequestEnvelope(operation, params, false)
	body, err := json.Marshal(req)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("opsclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/mcp/request", bytes.NewReader(body))
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("opsclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("opsclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	var env protocol.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("opsclient: decode response: %w", err)
	}
	return env, nil
}

// Operations fetches the operation catalog from the discovery endpoint.
func (c *Client) Operations(ctx context.Context) ([]protocol.OperationDescriptor, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/mcp/operations", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("opsclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Operations []protocol.OperationDescriptor `json:"operations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("opsclient: decode catalog: %w", err)
	}
	return body.Operations, nil
}

// Health reports the service's liveness document.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Health fetches the health endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/mcp/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("opsclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("opsclient: decode health: %w", err)
	}
	return &h, nil
}

// drainEnvelopes reads envelopes from decode until the terminal chunk, an
// error envelope, or ctx cancellation, forwarding each onto out. The channel
// is closed once the stream ends.
func drainEnvelopes(ctx context.Context, out chan<- protocol.Envelope, closeBody io.Closer, decode func() (protocol.Envelope, error)) {
	defer close(out)
	defer closeBody.Close()

	for {
		env, err := decode()
		if err != nil {
			return
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return
		}
		if env.Type == protocol.TypeError {
			return
		}
		if env.Type == protocol.TypeStreamChunk && env.IsFinal {
			return
		}
	}
}
