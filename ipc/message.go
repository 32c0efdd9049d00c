// Package ipc defines the messages exchanged between the UI process and the
// torrent worker, and the ordered transports that carry them.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is bumped whenever a message shape changes incompatibly.
const ProtocolVersion = 1

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrVersion        = errors.New("protocol version mismatch")
	ErrClosed         = errors.New("connection closed")
)

// Message is the wire envelope. Args holds the JSON encoded payload.
type Message struct {
	V    int             `json:"v"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

func encode(name string, payload interface{}) (Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return Message{V: ProtocolVersion, Name: name, Args: b}, nil
}

func decodeAs[T any](m Message) (T, error) {
	var v T
	if len(m.Args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(m.Args, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", m.Name, err)
	}
	return v, nil
}

func checkVersion(m Message) error {
	if m.V != ProtocolVersion {
		return fmt.Errorf("%w: got %d, want %d (%s)", ErrVersion, m.V, ProtocolVersion, m.Name)
	}
	return nil
}
