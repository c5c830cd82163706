package server

import (
	"fmt"

	"github.com/roffe/elevtrace/pkg/session"
)

type MessageType int

func (m MessageType) String() string {
	switch m {
	case MessageTypeEvent:
		return "Event"
	case MessageTypeStatus:
		return "Status"
	case MessageTypePing:
		return "Ping"
	default:
		return "Unknown"
	}
}

func (m MessageType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MessageType) UnmarshalText(b []byte) error {
	for _, t := range []MessageType{MessageTypeEvent, MessageTypeStatus, MessageTypePing} {
		if t.String() == string(b) {
			*m = t
			return nil
		}
	}
	return fmt.Errorf("unknown message type %q", b)
}

const (
	MessageTypeEvent MessageType = iota
	MessageTypeStatus
	MessageTypePing
)

// Message is what the events endpoint writes to websocket clients.
type Message struct {
	Type   MessageType     `json:"type"`
	Topic  string          `json:"topic,omitempty"`
	Data   float64         `json:"data"`
	Status *session.Status `json:"status,omitempty"`
}

func (m *Message) String() string {
	if m.Topic == "" {
		return fmt.Sprintf("Type: %s", m.Type)
	}
	return fmt.Sprintf("Type: %s, Topic: %s, Data: %g", m.Type, m.Topic, m.Data)
}
