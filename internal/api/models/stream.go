package models

import "encoding/json"

// Stream message types on /v1/monitoring/stream.
const (
	StreamTypeTick     = "tick"
	StreamTypePing     = "ping"
	StreamTypePong     = "pong"
	StreamTypeSnapshot = "snapshot"
	StreamTypeError    = "error"
)

// StreamRequest is a client message. Tick messages carry a TickRequest payload.
type StreamRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StreamMessage is a server message.
type StreamMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// StreamError is the payload of an error message.
type StreamError struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
}
