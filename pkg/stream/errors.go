package stream

import (
	"errors"
	"fmt"
)

var (
	ErrMissingToken    = errors.New("token is required")
	ErrMissingKey      = errors.New("key is required")
	ErrMissingHandler  = errors.New("update handler is required")
	ErrMissingFragment = errors.New("endpoint fragment is required")
	ErrAlreadyStarted  = errors.New("stream session already started")
	ErrPongTimeout     = errors.New("ping/pong timed out")
)

// ValidationError is returned synchronously by constructors. No connection
// is attempted when it occurs.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AuthenticationError reports a handshake the server refused.
type AuthenticationError struct {
	Fragment string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("not authenticated or invalid request on %q stream", e.Fragment)
}

// ParseError reports an inbound message that could not be decoded. Only that
// message is dropped.
type ParseError struct {
	Payload []byte
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransportError reports a socket failure or an unexpected closure.
type TransportError struct {
	Code   int
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("websocket error: %v", e.Err)
	}
	return fmt.Sprintf("websocket closed with status code %d: %s", e.Code, e.Reason)
}

func (e *TransportError) Unwrap() error { return e.Err }
