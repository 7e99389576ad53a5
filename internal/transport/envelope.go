package transport

import (
	"encoding/json"
	"time"
)

// Event names of the chat service's socket contract.
const (
	EventJoinContract     = "join-contract"
	EventLeaveContract    = "leave-contract"
	EventJoinAdmin        = "join-admin"
	EventLeaveAdmin       = "leave-admin"
	EventSendMessage      = "send-message"
	EventNewMessage       = "new-message"
	EventNewMessageAdmin  = "new-message-admin"
	EventTyping           = "typing"
	EventUserTyping       = "user-typing"
	EventMessageReceived  = "message-received"
	EventMessageDelivered = "message-delivered"
	EventMessageRead      = "message-read"
	EventUserOnline       = "user-online"
)

// Envelope is the frame exchanged with the chat service: an event name
// plus an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data any) (*Envelope, error) {
	env := &Envelope{Event: event}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}

	return env, nil
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
