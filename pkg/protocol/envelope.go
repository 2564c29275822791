// Package protocol defines the wire envelope shared by every Operations
// Service transport (unary, NDJSON, SSE, WebSocket) and by the orchestrator's
// tool client.
package protocol

import "time"

// ProtocolVersion identifies the envelope schema understood by this build.
const ProtocolVersion = "1.0"

// EnvelopeType discriminates the purpose of an Envelope.
type EnvelopeType string

const (
	TypeRequest     EnvelopeType = "request"
	TypeResponse    EnvelopeType = "response"
	TypeStreamChunk EnvelopeType = "stream_chunk"
	TypeError       EnvelopeType = "error"
)

// ResponseStatus discriminates a successful result from a failed one.
type ResponseStatus string

const (
	StatusSuccess   ResponseStatus = "success"
	StatusStreaming ResponseStatus = "streaming"
	StatusError     ResponseStatus = "error"
)

// Envelope is the single wire shape carried by every transport. Which
// fields are populated depends on Type; unused fields are omitted from
// the JSON encoding.
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Version   string       `json:"version"`
	RequestID string       `json:"request_id,omitempty"`

	// request
	Operation string         `json:"operation,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Stream    bool           `json:"stream,omitempty"`

	// response
	Status         ResponseStatus `json:"status,omitempty"`
	Result         any            `json:"result,omitempty"`
	StreamComplete bool           `json:"stream_complete,omitempty"`

	// stream_chunk
	Sequence int  `json:"sequence,omitempty"`
	Data     any  `json:"data,omitempty"`
	IsFinal  bool `json:"is_final,omitempty"`

	// error
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Details      any    `json:"details,omitempty"`
}

// NewResponse builds a successful, complete response envelope correlated to
// requestID. Non-streaming operation results always carry stream_complete=true.
func NewResponse(id, requestID string, result any) Envelope {
	return Envelope{
		Type:           TypeResponse,
		ID:             id,
		Timestamp:      time.Now().UTC(),
		Version:        ProtocolVersion,
		RequestID:      requestID,
		Status:         StatusSuccess,
		Result:         result,
		StreamComplete: true,
	}
}

// NewStreamingPlaceholder builds the stub response the unary endpoint returns
// for a streaming request: status "streaming", stream_complete false, and
// nothing further. Existing clients depend on receiving this stub rather than
// a rejection, so the unary endpoint keeps serving it; callers wanting the
// actual chunks must use a streaming transport.
func NewStreamingPlaceholder(id, requestID string) Envelope {
	return Envelope{
		Type:           TypeResponse,
		ID:             id,
		Timestamp:      time.Now().UTC(),
		Version:        ProtocolVersion,
		RequestID:      requestID,
		Status:         StatusStreaming,
		StreamComplete: false,
	}
}

// NewErrorEnvelope builds an error envelope correlated to requestID.
func NewErrorEnvelope(id, requestID, code, message string, details any) Envelope {
	return Envelope{
		Type:         TypeError,
		ID:           id,
		Timestamp:    time.Now().UTC(),
		Version:      ProtocolVersion,
		RequestID:    requestID,
		ErrorCode:    code,
		ErrorMessage: message,
		Details:      details,
	}
}

// NewStreamChunk builds one frame of a streaming response.
func NewStreamChunk(id, requestID string, sequence int, data any, isFinal bool) Envelope {
	return Envelope{
		Type:      TypeStreamChunk,
		ID:        id,
		Timestamp: time.Now().UTC(),
		Version:   ProtocolVersion,
		RequestID: requestID,
		Sequence:  sequence,
		Data:      data,
		IsFinal:   isFinal,
	}
}

// OperationDescriptor describes one operation for the discovery endpoint.
type OperationDescriptor struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Parameters  []ParameterDescriptor `json:"parameters"`
	Streaming   bool                  `json:"streaming"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
}

// ParameterDescriptor describes a single operation parameter.
type ParameterDescriptor struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}
