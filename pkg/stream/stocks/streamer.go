// Package stocks streams sentiment updates for an explicit set of symbols.
package stocks

import (
	"github.com/ZhouDavid/sentiment-stream/pkg/stream"
)

// Fragment is the endpoint serving specific-symbol subscriptions.
const Fragment = "stocks"

// Streamer handles sentiment streaming for specific stocks
type Streamer struct {
	*stream.Session
}

var _ stream.SentimentStreamer = (*Streamer)(nil)

// NewStreamer creates a new stock sentiment streamer. A nil symbols slice
// subscribes to nothing yet; the handshake still carries an empty list.
func NewStreamer(creds stream.Credentials, symbols []string, handler stream.UpdateHandler, opts ...stream.Option) (*Streamer, error) {
	if symbols == nil {
		symbols = []string{}
	}

	session, err := stream.NewSession(Fragment, stream.Subscription{
		Credentials: creds,
		Symbols:     symbols,
	}, handler, opts...)
	if err != nil {
		return nil, err
	}

	return &Streamer{Session: session}, nil
}

// Symbols returns the subscribed symbols.
func (s *Streamer) Symbols() []string {
	return s.Subscription().Symbols
}
