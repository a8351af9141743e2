package stream

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultBackoffMin = time.Second
	DefaultBackoffMax = 30 * time.Second
)

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithClock sets the time source for reconnect backoff and, when no dialer is
// given, for the liveness probe.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithErrorHandler receives every asynchronous error. It runs on the session
// goroutine.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Session) { s.onError = h }
}

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(s *Session) { s.baseURL = u }
}

// WithBackoff bounds the delay between consecutive failed connection
// attempts. The first reconnect after a stream that stayed up for at least
// minDelay is immediate.
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(s *Session) {
		s.backoffMin = minDelay
		s.backoffMax = maxDelay
	}
}
