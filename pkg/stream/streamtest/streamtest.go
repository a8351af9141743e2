// Package streamtest provides an in-memory Dialer for exercising stream
// sessions without a network.
package streamtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZhouDavid/sentiment-stream/pkg/stream"
)

const waitTimeout = 2 * time.Second

// Dialer records every transport it opens.
type Dialer struct {
	// AutoOpen emits OnOpen right after each Open.
	AutoOpen bool
	// FailOpen emits OnClose(1006) right after each Open, as if the endpoint
	// were unreachable.
	FailOpen bool

	mu         sync.Mutex
	transports []*Transport
	overlapped bool
	opened     chan *Transport
}

func NewDialer() *Dialer {
	return &Dialer{opened: make(chan *Transport, 64)}
}

// Open implements stream.Dialer.
func (d *Dialer) Open(_ context.Context, url string, events stream.Events) stream.Transport {
	t := &Transport{
		URL:    url,
		events: events,
		sent:   make(chan []byte, 16),
	}

	d.mu.Lock()
	for _, prev := range d.transports {
		if !prev.Closed() {
			d.overlapped = true
		}
	}
	d.transports = append(d.transports, t)
	d.mu.Unlock()

	d.opened <- t

	switch {
	case d.FailOpen:
		go t.Drop(1006, "connection refused")
	case d.AutoOpen:
		go t.Open()
	}
	return t
}

// Next waits for the next opened transport.
func (d *Dialer) Next(tb testing.TB) *Transport {
	tb.Helper()
	select {
	case t := <-d.opened:
		return t
	case <-time.After(waitTimeout):
		require.FailNow(tb, "no transport opened")
		return nil
	}
}

// Count returns how many transports were opened.
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

// Live returns how many opened transports are not closed.
func (d *Dialer) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.transports {
		if !t.Closed() {
			n++
		}
	}
	return n
}

// Overlapped reports whether a transport was opened while an earlier one
// was still live.
func (d *Dialer) Overlapped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlapped
}

// Transport is a scripted connection. Its driver methods block until the
// session accepts the event.
type Transport struct {
	URL string

	events stream.Events
	sent   chan []byte

	mu         sync.Mutex
	closed     bool
	closeCalls int
}

// Send implements stream.Transport.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil
	}

	frame := make([]byte, len(data))
	copy(frame, data)
	t.sent <- frame
	return nil
}

// Close implements stream.Transport. The close event is emitted
// asynchronously, like a real socket.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closeCalls++
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	go t.events.OnClose(1000, "client closed")
	return nil
}

func (t *Transport) Open() { t.events.OnOpen() }

func (t *Transport) Receive(payload string) { t.events.OnMessage([]byte(payload)) }

func (t *Transport) Fail(err error) { t.events.OnError(err) }

// Drop closes the connection from the remote side.
func (t *Transport) Drop(code int, reason string) {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.events.OnClose(code, reason)
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCalls
}

// Sent waits for the next frame the session transmitted.
func (t *Transport) Sent(tb testing.TB) []byte {
	tb.Helper()
	select {
	case frame := <-t.sent:
		return frame
	case <-time.After(waitTimeout):
		require.FailNow(tb, "no frame sent")
		return nil
	}
}
