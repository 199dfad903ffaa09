package device

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is a decoded device response
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"message"`
}

// Decode unmarshals the payload into v
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("empty %s payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Failure is a Failure message returned by the device
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("device failure %s: %s", f.Code, f.Message)
}

// Channel carries typed calls to a device. Only one call may be in flight.
type Channel interface {
	// TypedCall sends command with params and waits for a response of type
	// expected. A device Failure is returned as *Failure.
	TypedCall(ctx context.Context, command, expected string, params any) (*Message, error)
}
