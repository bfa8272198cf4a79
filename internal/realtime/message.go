package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/syncache/internal/record"
)

// Kind is the change a push event describes.
type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindInsert, KindUpdate, KindDelete:
		return true
	}
	return false
}

// Message is one push event. Type is the event name listeners subscribe to,
// normally the collection name.
type Message struct {
	Type   string        `json:"type"`
	Event  Kind          `json:"event"`
	Data   record.Record `json:"data,omitempty"`
	Origin string        `json:"origin,omitempty"`
}

// Decode parses a wire frame. Numeric ids in Data are normalized to strings.
func Decode(frame []byte) (Message, error) {
	var raw struct {
		Type   string         `json:"type"`
		Event  Kind           `json:"event"`
		Data   map[string]any `json:"data"`
		Origin string         `json:"origin"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if raw.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	msg := Message{Type: raw.Type, Event: raw.Event, Origin: raw.Origin}
	if raw.Data != nil {
		msg.Data = record.FromMap(raw.Data)
	}
	return msg, nil
}

// Encode renders msg as a wire frame.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}
