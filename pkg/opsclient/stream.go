package opsclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/brightloop/opsmesh/pkg/protocol"
)

// Stream issues a streaming operation over the NDJSON endpoint and delivers
// every envelope on the returned channel, in order: stream chunks ending in
// one with IsFinal=true, or a single error envelope. The channel is closed
// once the stream ends or ctx is cancelled; cancelling ctx also terminates
// the server-side resource.
func (c *Client) Stream(ctx context.Context, operation string, params map[string]any) (<-chan protocol.Envelope, error) {
	resp, err := c.postStream(ctx, "/api/mcp/stream", operation, params)
	if err != nil {
		return nil, err
	}

	out := make(chan protocol.Envelope)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	go drainEnvelopes(ctx, out, resp.Body, func() (protocol.Envelope, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return protocol.Envelope{}, err
			}
			return protocol.Envelope{}, io.EOF
		}
		var env protocol.Envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			return protocol.Envelope{}, err
		}
		return env, nil
	})
	return out, nil
}

// StreamSSE behaves like Stream but consumes the server-sent-event endpoint,
// decoding each event's data field back into an envelope.
func (c *Client) StreamSSE(ctx context.Context, operation string, params map[string]any) (<-chan protocol.Envelope, error) {
	resp, err := c.postStream(ctx, "/api/mcp/sse-stream", operation, params)
	if err != nil {
		return nil, err
	}

	out := make(chan protocol.Envelope)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	go drainEnvelopes(ctx, out, resp.Body, func() (protocol.Envelope, error) {
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var env protocol.Envelope
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &env); err != nil {
				return protocol.Envelope{}, err
			}
			return env, nil
		}
		if err := scanner.Err(); err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.Envelope{}, io.EOF
	})
	return out, nil
}

func (c *Client) postStream(ctx context.Context, path, operation string, params map[string]any) (*http.Response, error) {
	req := newRequestEnvelope(operation, params, true)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("opsclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("opsclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("opsclient: request failed: %w", err)
	}
	return resp, nil
}

// Session is one persistent WebSocket connection multiplexing requests over
// a single socket. It is safe for one concurrent reader and one concurrent
// writer, matching the underlying connection's constraints.
type Session struct {
	conn *websocket.Conn
}

// DialSession opens a WebSocket session against the service's /ws/mcp
// endpoint.
func (c *Client) DialSession(ctx context.Context) (*Session, error) {
	wsURL := c.baseURL + "/ws/mcp"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("opsclient: dial session: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &Session{conn: conn}, nil
}

// Send submits one operation request on the session. The returned envelope
// id correlates the responses read via Recv.
func (s *Session) Send(operation string, params map[string]any, stream bool) (requestID string, err error) {
	req := newRequestEnvelope(operation, params, stream)
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("opsclient: marshal request: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return "", fmt.Errorf("opsclient: write frame: %w", err)
	}
	return req.ID, nil
}

// Recv reads the next envelope from the session.
func (s *Session) Recv() (protocol.Envelope, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("opsclient: read frame: %w", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("opsclient: decode frame: %w", err)
	}
	return env, nil
}

// Close shuts the session down.
func (s *Session) Close() error {
	return s.conn.Close()
}
