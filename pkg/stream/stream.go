// Package stream keeps a websocket subscription to the sentiment service
// alive: it performs the credential handshake, probes liveness, reconnects
// on failure and hands every data update to a caller supplied handler.
package stream

import (
	"context"

	"github.com/ZhouDavid/sentiment-stream/pkg/record"
)

// DefaultBaseURL is the streaming endpoint root. The fragment selecting the
// subscription variant is appended to it.
const DefaultBaseURL = "ws://socket.sentimentinvestor.com/"

// SentimentStreamer is implemented by every subscription variant.
type SentimentStreamer interface {
	// Stream connects and keeps the subscription alive until ctx is cancelled.
	Stream(ctx context.Context) error
	// Reconnect drops the current connection and opens a fresh one.
	Reconnect()
	// State reports where the session is in its connection lifecycle.
	State() State
}

// Update is one sentiment snapshot for a ticker, exactly as the service sent it.
type Update = record.Record

// UpdateHandler is a function type that handles incoming sentiment updates.
// It runs on the session goroutine and may block.
type UpdateHandler func(Update)

// ErrorHandler receives errors raised after construction: authentication
// rejections, malformed messages and transport failures.
type ErrorHandler func(error)

// Observer receives session counters. internal/metrics.StreamMetrics
// implements it.
type Observer interface {
	ConnectAttempt(fragment string)
	Closed(fragment string, code int)
	Message(fragment, kind string)
	ParseError(fragment string)
	AuthFailure(fragment string)
	StateChanged(fragment string, state int)
}

type noopObserver struct{}

func (noopObserver) ConnectAttempt(string) {}
func (noopObserver) Closed(string, int) {}
func (noopObserver) Message(string, string) {}
func (noopObserver) ParseError(string) {}
func (noopObserver) AuthFailure(string) {}
func (noopObserver) StateChanged(string, int) {}
