package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	typeFailure       = "Failure"
	typeButtonRequest = "ButtonRequest"
	typeButtonAck     = "ButtonAck"
)

// StreamChannel speaks newline-delimited JSON envelopes
// ({"type": ..., "message": {...}}) over a byte stream, such as an emulator
// bridge socket. Button requests are acknowledged automatically.
type StreamChannel struct {
	mu     sync.Mutex
	closer io.Closer
	enc    *json.Encoder
	dec    *json.Decoder
}

// NewStreamChannel wraps rw
func NewStreamChannel(rw io.ReadWriter) *StreamChannel {
	ch := &StreamChannel{
		enc: json.NewEncoder(rw),
		dec: json.NewDecoder(rw),
	}
	if c, ok := rw.(io.Closer); ok {
		ch.closer = c
	}
	return ch
}

// DialStream connects to a bridge at a TCP address
func DialStream(ctx context.Context, addr string, timeout time.Duration) (*StreamChannel, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device bridge %s: %w", addr, err)
	}
	return NewStreamChannel(conn), nil
}

// TypedCall implements Channel
func (c *StreamChannel) TypedCall(ctx context.Context, command, expected string, params any) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", command, err)
	}
	if err := c.enc.Encode(Message{Type: command, Payload: payload}); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", command, err)
	}

	for {
		var resp Message
		if err := c.dec.Decode(&resp); err != nil {
			return nil, fmt.Errorf("failed to read response to %s: %w", command, err)
		}

		switch resp.Type {
		case typeButtonRequest:
			if err := c.enc.Encode(Message{Type: typeButtonAck, Payload: json.RawMessage("{}")}); err != nil {
				return nil, fmt.Errorf("failed to acknowledge button request: %w", err)
			}
		case typeFailure:
			failure := &Failure{}
			if err := resp.Decode(failure); err != nil {
				return nil, err
			}
			return nil, failure
		default:
			return &resp, nil
		}
	}
}

// Close closes the underlying stream
func (c *StreamChannel) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
