package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// Credentials authenticate a session. Both fields are required.
type Credentials struct {
	Token string
	Key   string
}

// Validate reports the first missing credential.
func (c Credentials) Validate() error {
	if c.Token == "" {
		return &ValidationError{Field: "token", Err: ErrMissingToken}
	}
	if c.Key == "" {
		return &ValidationError{Field: "key", Err: ErrMissingKey}
	}
	return nil
}

// Subscription is the parameter set delivered once per connection as the
// handshake frame. A nil Symbols omits the field entirely (every symbol);
// an empty, non-nil Symbols is sent as [].
type Subscription struct {
	Credentials
	Symbols []string
}

// Handshake encodes the subscription as the handshake frame.
func (s Subscription) Handshake() ([]byte, error) {
	frame := map[string]any{
		"token": s.Token,
		"key":   s.Key,
	}
	if s.Symbols != nil {
		frame["symbols"] = s.Symbols
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("error encoding handshake: %w", err)
	}
	return data, nil
}

func (s Subscription) clone() Subscription {
	out := Subscription{Credentials: s.Credentials}
	if s.Symbols != nil {
		out.Symbols = append([]string{}, s.Symbols...)
	}
	return out
}

// HandshakeAck is the server's answer to the handshake frame.
type HandshakeAck struct {
	Authenticated bool
	Timestamp     time.Time
	SubscribedTo  []string
}
