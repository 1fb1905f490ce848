package hubsocket

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sentinel errors for transport and session state.
var (
	// ErrTransportUnavailable is returned by Send while a reconnect is in
	// flight and no socket handle exists.
	ErrTransportUnavailable = errors.New("data cannot be sent during websocket reconnect")
	// ErrSocketNotOpen is reported by a socket that holds queued sends it
	// cannot write because the connection is not open.
	ErrSocketNotOpen = errors.New("socket is not open; queued data held")
	// ErrConnectionLost is reported by a socket whose connection dropped.
	ErrConnectionLost = errors.New("connection lost")
	// ErrSendQueueFull is returned when a bounded send queue has no room left.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrRestartFailed is the stop cause recorded when the server does not
	// acknowledge a restart handshake. It is never passed to OnError.
	ErrRestartFailed = errors.New("restart handshake was not acknowledged")
	// ErrTransportClosed is returned when a closed transport is reused.
	ErrTransportClosed = errors.New("transport cannot be reused")
	// ErrAlreadyStarted is returned by Start on a session that is not Disconnected.
	ErrAlreadyStarted = errors.New("session is already started")
	// ErrTransportBusy is returned by Start when the transport is already
	// driving another active session.
	ErrTransportBusy = errors.New("transport is driving another session")
	// ErrSessionStopped is returned by Start when the session was stopped
	// while its socket was opening.
	ErrSessionStopped = errors.New("session stopped while starting")
	// ErrSocketDisposed is returned by operations on a disposed socket.
	ErrSocketDisposed = errors.New("socket disposed")
)

// NegotiationError represents a failed or unusable negotiation response.
type NegotiationError struct {
	URL    string
	Reason string
	Cause  error
}

func (e *NegotiationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("negotiation failed [%s]: %s: %v", e.URL, e.Reason, e.Cause)
	}
	return fmt.Sprintf("negotiation failed [%s]: %s", e.URL, e.Reason)
}

func (e *NegotiationError) Unwrap() error {
	return e.Cause
}

// ConnectError represents a failure to open the underlying socket.
type ConnectError struct {
	URL   string
	Cause error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect error [%s]: %v", e.URL, e.Cause)
}

func (e *ConnectError) Unwrap() error {
	return e.Cause
}

// DecodeError represents an inbound frame that could not be interpreted.
// The frame is dropped and the receive loop continues.
type DecodeError struct {
	Raw   string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %v (frame=%q)", e.Cause, truncate(e.Raw, 128))
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// ReconnectWindowExceededError is the fatal error that stops a session when
// no activity was observed within its reconnect window.
type ReconnectWindowExceededError struct {
	LastActiveAt time.Time
	Window       time.Duration
}

func (e *ReconnectWindowExceededError) Error() string {
	return fmt.Sprintf("no active server connection since %s (reconnect window %s)",
		e.LastActiveAt.Format(time.RFC3339), e.Window)
}

// LogErrors returns an OnError func that logs every transport error to the
// given logger. Use it with ConsumerFuncs.
func LogErrors(logger zerolog.Logger) func(error) {
	return func(err error) {
		logger.Error().Err(err).Msg("hubsocket error")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
