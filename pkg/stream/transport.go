package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 10 * time.Second

	pingPayload = "ping"
	writeWait   = 10 * time.Second
)

// Events receives the lifecycle of one transport. All calls for a given
// transport come from a single goroutine, in order, and OnClose is always
// the last one.
type Events interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(code int, reason string)
}

// Transport is one streaming connection.
type Transport interface {
	// Send transmits a text frame. It is a no-op when the connection is not
	// open.
	Send(data []byte) error
	// Close tears the connection down, aborting an in-flight dial.
	Close() error
}

// Dialer opens transports. Open never blocks on the network: failures are
// reported through events.
type Dialer interface {
	Open(ctx context.Context, url string, events Events) Transport
}

// WSDialer opens gorilla websocket transports with a ping/pong liveness probe.
type WSDialer struct {
	Dialer       *websocket.Dialer
	Clock        clockwork.Clock
	PingInterval time.Duration
	PongTimeout  time.Duration
}

// NewWSDialer returns a dialer with the default probe timings.
func NewWSDialer(clock clockwork.Clock) *WSDialer {
	return &WSDialer{
		Dialer:       websocket.DefaultDialer,
		Clock:        clock,
		PingInterval: DefaultPingInterval,
		PongTimeout:  DefaultPongTimeout,
	}
}

// Open implements Dialer.
func (d *WSDialer) Open(ctx context.Context, url string, events Events) Transport {
	ctx, cancel := context.WithCancel(ctx)

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	clock := d.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	t := &wsTransport{
		dialer:       dialer,
		clock:        clock,
		pingInterval: d.PingInterval,
		pongTimeout:  d.PongTimeout,
		events:       events,
		cancel:       cancel,
	}
	if t.pingInterval <= 0 {
		t.pingInterval = DefaultPingInterval
	}
	if t.pongTimeout <= 0 {
		t.pongTimeout = DefaultPongTimeout
	}

	go t.run(ctx, url)
	return t
}

type wsTransport struct {
	dialer       *websocket.Dialer
	clock        clockwork.Clock
	pingInterval time.Duration
	pongTimeout  time.Duration
	events       Events
	cancel       context.CancelFunc

	// mu guards the fields below and serializes data frame writes.
	mu          sync.Mutex
	netConn     net.Conn
	conn        *websocket.Conn
	closing     bool
	aborted     bool
	closeCode   int
	closeReason string
	closeErr    error

	lastActivity atomic.Int64
	lastPong     atomic.Int64
}

func (t *wsTransport) run(ctx context.Context, url string) {
	defer t.cancel()

	conn, err := t.dial(ctx, url)
	if err != nil {
		code, reason, closeErr := t.closeStatus(fmt.Errorf("error connecting to websocket: %w", err))
		if closeErr != nil {
			t.events.OnError(closeErr)
		}
		t.events.OnClose(code, reason)
		return
	}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		conn.Close()
		t.events.OnClose(websocket.CloseNormalClosure, "closed before open")
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.touch()
	conn.SetPongHandler(func(string) error {
		t.touch()
		t.lastPong.Store(t.clock.Now().UnixNano())
		return nil
	})

	t.events.OnOpen()

	stop := make(chan struct{})
	go t.keepAlive(conn, stop)

	code, reason := t.readLoop(conn)

	close(stop)
	conn.Close()
	t.mu.Lock()
	t.conn = nil
	t.mu.Unlock()

	t.events.OnClose(code, reason)
}

// dial runs the websocket handshake on a socket Close can reach. The
// dialer only honours ctx until TCP connects; the upgrade itself is bounded
// by HandshakeTimeout alone.
func (t *wsTransport) dial(ctx context.Context, url string) (*websocket.Conn, error) {
	d := *t.dialer
	netDial := d.NetDialContext
	if netDial == nil {
		if d.NetDial != nil {
			plain := d.NetDial
			netDial = func(_ context.Context, network, addr string) (net.Conn, error) {
				return plain(network, addr)
			}
		} else {
			var nd net.Dialer
			netDial = nd.DialContext
		}
	}
	d.NetDial = nil
	d.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		c, err := netDial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closing {
			c.Close()
			return nil, net.ErrClosed
		}
		t.netConn = c
		return c, nil
	}

	conn, _, err := d.DialContext(ctx, url, nil)
	return conn, err
}

func (t *wsTransport) readLoop(conn *websocket.Conn) (int, string) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			code, reason, closeErr := t.closeStatus(err)
			if closeErr != nil {
				t.events.OnError(closeErr)
			}
			return code, reason
		}
		t.touch()

		if messageType != websocket.TextMessage {
			continue
		}
		t.events.OnMessage(data)
	}
}

// closeStatus maps a terminal error to a close code. A closure we initiated
// takes precedence over whatever error the socket surfaced.
func (t *wsTransport) closeStatus(err error) (int, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.aborted {
		return t.closeCode, t.closeReason, t.closeErr
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text, nil
	}
	return websocket.CloseAbnormalClosure, err.Error(), err
}

// keepAlive pings after pingInterval without inbound traffic and tears the
// connection down when no pong arrives within pongTimeout.
func (t *wsTransport) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	timer := t.clock.NewTimer(t.pingInterval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.Chan():
		}

		idle := t.clock.Since(time.Unix(0, t.lastActivity.Load()))
		if idle < t.pingInterval {
			timer.Reset(t.pingInterval - idle)
			continue
		}

		pingAt := t.clock.Now().UnixNano()
		if err := conn.WriteControl(websocket.PingMessage, []byte(pingPayload), time.Now().Add(writeWait)); err != nil {
			t.abort(websocket.CloseAbnormalClosure, "ping failed", fmt.Errorf("error sending ping: %w", err))
			return
		}

		timer.Reset(t.pongTimeout)
		select {
		case <-stop:
			return
		case <-timer.Chan():
		}

		if t.lastPong.Load() < pingAt {
			t.abort(websocket.CloseAbnormalClosure, ErrPongTimeout.Error(), ErrPongTimeout)
			return
		}
		// next probe is due pingInterval after the last inbound frame
		idle = t.clock.Since(time.Unix(0, t.lastActivity.Load()))
		timer.Reset(max(t.pingInterval-idle, 0))
	}
}

func (t *wsTransport) touch() {
	t.lastActivity.Store(t.clock.Now().UnixNano())
}

// abort records why we are closing and drops the socket, which unblocks the
// read loop.
func (t *wsTransport) abort(code int, reason string, err error) {
	t.mu.Lock()
	if !t.aborted {
		t.aborted = true
		t.closeCode = code
		t.closeReason = reason
		t.closeErr = err
	}
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send implements Transport.
func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closing {
		return nil
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("error setting write deadline: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("error writing message: %w", err)
	}
	return nil
}

// Close implements Transport.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	if !t.aborted {
		t.aborted = true
		t.closeCode = websocket.CloseNormalClosure
		t.closeReason = "client closed"
	}
	conn, netConn := t.conn, t.netConn
	t.mu.Unlock()

	t.cancel()
	if conn == nil {
		// handshake still pending
		if netConn != nil {
			netConn.Close()
		}
		return nil
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}
