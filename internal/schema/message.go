package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageVersion is the protocol version stamped on every envelope. A
// mismatched version means "not a message I understand", not an error;
// there is no negotiation beyond this single string.
const MessageVersion = "1"

// MessageType discriminates the payload carried by an envelope
type MessageType string

const (
	TypeHandshake    MessageType = "handshake"
	TypeEnqueue      MessageType = "enqueue"
	TypeRunNow       MessageType = "run-now"
	TypeStatusUpdate MessageType = "status-update"
	TypeLog          MessageType = "log"
	TypeRequestState MessageType = "request-state"
	TypeState        MessageType = "state"
)

// knownTypes is the closed set of payload tags. Envelopes carrying any
// other tag are rejected before reaching application logic.
var knownTypes = map[MessageType]bool{
	TypeHandshake:    true,
	TypeEnqueue:      true,
	TypeRunNow:       true,
	TypeStatusUpdate: true,
	TypeLog:          true,
	TypeRequestState: true,
	TypeState:        true,
}

// Message is the sole unit of communication between contexts: a versioned,
// typed, payload-carrying envelope. The payload's internal shape is
// validated separately, per type, by the consumer.
type Message struct {
	Version string          `json:"version"`
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage stamps a fresh unique id and the current protocol version.
// The payload must be JSON-marshalable.
func NewMessage(t MessageType, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return &Message{
		Version: MessageVersion,
		ID:      uuid.New().String(),
		Type:    t,
		Payload: raw,
	}, nil
}

// MustMessage is NewMessage for payload types that cannot fail to marshal.
func MustMessage(t MessageType, payload any) *Message {
	m, err := NewMessage(t, payload)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseMessage decodes raw bytes into an envelope and validates it: version
// equality, a non-empty id, a recognized type tag, and a present payload
// field. Anything failing this check is dropped by the transport layer, so
// callers get (nil, false) rather than an error.
func ParseMessage(raw []byte) (*Message, bool) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	if m.Version != MessageVersion {
		return nil, false
	}
	if m.ID == "" {
		return nil, false
	}
	if !knownTypes[m.Type] {
		return nil, false
	}
	if m.Payload == nil {
		return nil, false
	}
	return &m, true
}

// EnqueuePayload carries a job and its resolved account across contexts
type EnqueuePayload struct {
	Item    Job     `json:"item"`
	Account Account `json:"account"`
}

// RunNowPayload dispatches a job to the execution agent
type RunNowPayload struct {
	Item    Job     `json:"item"`
	Account Account `json:"account"`
}

// StatusUpdatePayload reports a job status transition back to the control
// surface. Only the job named by QueueID may be affected by it.
type StatusUpdatePayload struct {
	QueueID    string    `json:"queueId"`
	Status     JobStatus `json:"status"`
	PostID     string    `json:"postId,omitempty"`
	Screenshot string    `json:"screenshot,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// LogPayload forwards a log line from the agent to the control surface
type LogPayload struct {
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// StatePayload announces connection state; used by state and handshake
// envelopes.
type StatePayload struct {
	Connected       bool   `json:"connected"`
	ActiveAccountID string `json:"activeAccountId,omitempty"`
}

func decodePayload(m *Message, want MessageType, v any) error {
	if m.Type != want {
		return fmt.Errorf("payload type mismatch: have %s, want %s", m.Type, want)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", want, err)
	}
	return nil
}

// EnqueuePayload decodes the payload of an enqueue envelope
func (m *Message) EnqueuePayload() (*EnqueuePayload, error) {
	var p EnqueuePayload
	if err := decodePayload(m, TypeEnqueue, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RunNowPayload decodes the payload of a run-now envelope
func (m *Message) RunNowPayload() (*RunNowPayload, error) {
	var p RunNowPayload
	if err := decodePayload(m, TypeRunNow, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// StatusUpdatePayload decodes the payload of a status-update envelope
func (m *Message) StatusUpdatePayload() (*StatusUpdatePayload, error) {
	var p StatusUpdatePayload
	if err := decodePayload(m, TypeStatusUpdate, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LogPayload decodes the payload of a log envelope
func (m *Message) LogPayload() (*LogPayload, error) {
	var p LogPayload
	if err := decodePayload(m, TypeLog, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// StatePayload decodes the payload of a state or handshake envelope
func (m *Message) StatePayload() (*StatePayload, error) {
	var p StatePayload
	if m.Type != TypeState && m.Type != TypeHandshake {
		return nil, fmt.Errorf("payload type mismatch: have %s, want %s or %s", m.Type, TypeState, TypeHandshake)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return &p, nil
}
