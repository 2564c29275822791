package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brightloop/opsmesh/pkg/protocol"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsSendBuffer      = 64
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
	wsPingInterval    = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsSession multiplexes many requests over one socket: every inbound text
// frame parses to one request envelope, every outbound frame is one
// envelope. Unlike a fire-and-forget broadcast, a tool-use caller waiting on
// its own request's chunks must never see them silently dropped, so under
// backpressure enqueueing on send blocks the sender (the goroutine serving
// that request, or the read loop for its own error replies) instead of
// discarding frames.
type wsSession struct {
	conn    *websocket.Conn
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	handler *Handlers
	wg      sync.WaitGroup
}

// WebSocket implements the persistent bidirectional transport at /ws/mcp.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	session := &wsSession{
		conn:    conn,
		send:    make(chan []byte, wsSendBuffer),
		ctx:     ctx,
		cancel:  cancel,
		handler: h,
	}
	session.run()
}

func (s *wsSession) run() {
	defer s.close()
	go s.writeLoop()
	s.readLoop()
	s.wg.Wait()
}

func (s *wsSession) close() {
	s.cancel()
	close(s.send)
	_ = s.conn.Close()
}

func (s *wsSession) readLoop() {
	s.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.Envelope
		if err := json.Unmarshal(data, &req); err != nil {
			s.enqueueEnvelope(malformedRequestEnvelope(err))
			continue
		}
		req, err = normalizeRequest(req)
		if err != nil {
			s.enqueueEnvelope(malformedRequestEnvelope(err))
			continue
		}

		s.wg.Add(1)
		go s.serve(req)
	}
}

// serve dispatches one request concurrently with the read loop, so a
// long-running streaming request never blocks the next inbound frame.
func (s *wsSession) serve(req protocol.Envelope) {
	defer s.wg.Done()

	if req.Stream {
		for env := range s.handler.dispatcher.DispatchStream(s.ctx, req) {
			s.enqueueEnvelope(env)
		}
		return
	}
	s.enqueueEnvelope(s.handler.dispatcher.Dispatch(s.ctx, req))
}

// enqueueEnvelope blocks until the frame is queued for write or the session
// ends, so a slow client pauses emission instead of losing chunks.
func (s *wsSession) enqueueEnvelope(env any) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	case <-s.ctx.Done():
	}
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.cancel()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		}
	}
}
