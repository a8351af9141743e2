// Package allstocks streams sentiment updates for every symbol the service
// tracks.
package allstocks

import (
	"github.com/ZhouDavid/sentiment-stream/pkg/stream"
)

// Fragment is the endpoint serving the all-symbols subscription.
const Fragment = "all"

// Streamer handles sentiment streaming for all stocks
type Streamer struct {
	*stream.Session
}

var _ stream.SentimentStreamer = (*Streamer)(nil)

// NewStreamer creates a new all-stocks sentiment streamer.
func NewStreamer(creds stream.Credentials, handler stream.UpdateHandler, opts ...stream.Option) (*Streamer, error) {
	session, err := stream.NewSession(Fragment, stream.Subscription{Credentials: creds}, handler, opts...)
	if err != nil {
		return nil, err
	}

	return &Streamer{Session: session}, nil
}
