package stream

import (
	"fmt"
	"time"

	"github.com/ZhouDavid/sentiment-stream/pkg/record"
)

// MessageKind classifies an inbound message.
type MessageKind string

const (
	MessageHandshakeAck MessageKind = "ack"
	MessageUpdate       MessageKind = "update"
)

const authStateField = "authState"

// Dispatcher routes inbound payloads to the handshake handler or to the
// update handler.
type Dispatcher struct {
	onAck    func(HandshakeAck)
	onUpdate UpdateHandler
}

// NewDispatcher creates a dispatcher. Both handlers are required.
func NewDispatcher(onAck func(HandshakeAck), onUpdate UpdateHandler) *Dispatcher {
	return &Dispatcher{
		onAck:    onAck,
		onUpdate: onUpdate,
	}
}

// Dispatch parses one payload and invokes the matching handler synchronously.
// A panic raised by a handler is not recovered.
func (d *Dispatcher) Dispatch(payload []byte) (MessageKind, error) {
	msg, err := record.Parse(payload)
	if err != nil {
		return "", &ParseError{Payload: payload, Err: err}
	}

	if msg.Has(authStateField) {
		ack, err := parseHandshakeAck(msg)
		if err != nil {
			return "", &ParseError{Payload: payload, Err: err}
		}
		d.onAck(ack)
		return MessageHandshakeAck, nil
	}

	d.onUpdate(msg)
	return MessageUpdate, nil
}

func parseHandshakeAck(msg record.Record) (HandshakeAck, error) {
	authenticated, ok := msg.Bool(authStateField)
	if !ok {
		return HandshakeAck{}, fmt.Errorf("%s is not a boolean", authStateField)
	}

	ack := HandshakeAck{Authenticated: authenticated}

	if v, found := msg.Get("timestamp"); found && !v.IsNull() {
		ms, ok := v.AsFloat()
		if !ok {
			return HandshakeAck{}, fmt.Errorf("timestamp is not a number")
		}
		ack.Timestamp = time.UnixMilli(int64(ms)).UTC()
	}

	if v, found := msg.Get("subscribedTo"); found && !v.IsNull() {
		symbols, ok := msg.Strings("subscribedTo")
		if !ok {
			return HandshakeAck{}, fmt.Errorf("subscribedTo is not a list of strings")
		}
		ack.SubscribedTo = symbols
	}

	return ack, nil
}
