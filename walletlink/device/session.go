package device

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-link/walletlink/errors"
	"github.com/pushchain/push-wallet-link/walletlink/metrics"
)

// Session owns the channel to one device. A single Lease may exist at a time.
type Session struct {
	channel Channel
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu sync.Mutex
}

// NewSession creates a new device session.
func NewSession(channel Channel, m *metrics.Metrics, logger zerolog.Logger) *Session {
	return &Session{
		channel: channel,
		metrics: m,
		logger:  logger.With().Str("component", "device_session").Logger(),
	}
}

// Acquire takes exclusive use of the device. It fails with Device_CallInProgress
// while another lease is held.
func (s *Session) Acquire() (*Lease, error) {
	if !s.mu.TryLock() {
		return nil, errors.NewDeviceError(errors.CodeCallInProgress, "Device call in progress", nil)
	}
	return &Lease{session: s}, nil
}

// Lease is exclusive use of a session
type Lease struct {
	session  *Session
	release  sync.Once
	released bool
}

// Release returns the device to the session
func (l *Lease) Release() {
	l.release.Do(func() {
		l.released = true
		l.session.mu.Unlock()
	})
}

// TypedCall issues one command. ctx is checked before the call is sent; once
// sent the call always runs to completion.
func (l *Lease) TypedCall(ctx context.Context, command, expected string, params any) (*Message, error) {
	if l.released {
		return nil, errors.NewInternalError("device lease already released", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewDeviceError(errors.CodeActionCancelled, "Action cancelled", err)
	}

	s := l.session
	msg, err := s.channel.TypedCall(context.WithoutCancel(ctx), command, expected, params)
	if err != nil {
		s.metrics.IncDeviceCall(command, "error")
		s.logger.Debug().Str("command", command).Err(err).Msg("device call failed")
		return nil, toDeviceError(err)
	}
	if msg == nil || msg.Type != expected {
		s.metrics.IncDeviceCall(command, "error")
		got := ""
		if msg != nil {
			got = msg.Type
		}
		return nil, errors.NewDeviceError(errors.CodeUnexpectedResponse,
			"Unexpected device response "+got+", expected "+expected, nil)
	}

	s.metrics.IncDeviceCall(command, "ok")
	return msg, nil
}

func toDeviceError(err error) *errors.TypedError {
	var typed *errors.TypedError
	if stderrors.As(err, &typed) {
		return typed
	}
	var failure *Failure
	if stderrors.As(err, &failure) {
		code := failure.Code
		if code == "" {
			code = errors.CodeDeviceFailure
		}
		return errors.NewDeviceError(code, failure.Message, err)
	}
	return errors.NewDeviceError(errors.CodeDeviceFailure, err.Error(), err)
}
