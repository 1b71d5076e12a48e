package protocol

import (
	"encoding/json"
	"time"
)

// Envelope is the outbound frame shape sent to every peer:
// {type, data, timestamp, server}.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Server    string    `json:"server,omitempty"`
}

// InboundFrame is the shape every inbound message is decoded into before
// dispatch. Data is kept as a raw message so each handler can decode its
// own typed payload.
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ErrorPayload is the data field of an outbound error frame.
type ErrorPayload struct {
	Error     string   `json:"error"`
	Supported []string `json:"supportedTypes,omitempty"`
	Details   string   `json:"details,omitempty"`
}
