package stream

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// State is a session's position in its connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingAck
	StateStreaming
	// StateRejected means the server refused the handshake on the current
	// connection. Data frames are dropped until the connection is replaced.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAck:
		return "awaiting_ack"
	case StateStreaming:
		return "streaming"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

const ackTimeFormat = "2006-01-02 15:04:05"

type eventKind int

const (
	eventOpen eventKind = iota
	eventMessage
	eventError
	eventClose
)

type event struct {
	kind   eventKind
	gen    uint64
	data   []byte
	err    error
	code   int
	reason string
}

// Session owns one streaming subscription. All state transitions happen on
// the goroutine running Stream; transports feed it through a mailbox.
type Session struct {
	fragment   string
	baseURL    string
	url        string
	sub        Subscription
	handshake  []byte
	dispatcher *Dispatcher

	dialer     Dialer
	clock      clockwork.Clock
	log        *zap.Logger
	observer   Observer
	onError    ErrorHandler
	backoffMin time.Duration
	backoffMax time.Duration

	state       atomic.Int32
	started     atomic.Bool
	mailbox     chan event
	reconnectCh chan struct{}
	done        chan struct{}

	// owned by the Stream goroutine
	gen              uint64
	attempt          string
	current          Transport
	failures         int
	streamingSince   time.Time
	errReported      bool
	reconnectPending bool
	retry            clockwork.Timer
}

// NewSession validates its inputs and prepares a session for the given
// endpoint fragment. No connection is made until Stream is called.
func NewSession(fragment string, sub Subscription, handler UpdateHandler, opts ...Option) (*Session, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, &ValidationError{Field: "handler", Err: ErrMissingHandler}
	}
	if fragment == "" {
		return nil, &ValidationError{Field: "fragment", Err: ErrMissingFragment}
	}

	s := &Session{
		fragment:    fragment,
		baseURL:     DefaultBaseURL,
		sub:         sub.clone(),
		log:         zap.NewNop(),
		observer:    noopObserver{},
		backoffMin:  DefaultBackoffMin,
		backoffMax:  DefaultBackoffMax,
		mailbox:     make(chan event),
		reconnectCh: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.dialer == nil {
		s.dialer = NewWSDialer(s.clock)
	}
	if s.backoffMax < s.backoffMin {
		s.backoffMax = s.backoffMin
	}

	handshake, err := s.sub.Handshake()
	if err != nil {
		return nil, err
	}
	s.handshake = handshake
	s.url = strings.TrimRight(s.baseURL, "/") + "/" + fragment
	s.log = s.log.With(zap.String("fragment", fragment))
	s.dispatcher = NewDispatcher(s.handleAck, handler)

	return s, nil
}

// Fragment returns the endpoint fragment this session subscribes to.
func (s *Session) Fragment() string { return s.fragment }

// URL returns the full streaming endpoint.
func (s *Session) URL() string { return s.url }

// Subscription returns a copy of the handshake parameters.
func (s *Session) Subscription() Subscription { return s.sub.clone() }

// State implements SentimentStreamer.
func (s *Session) State() State { return State(s.state.Load()) }

// Reconnect requests a fresh connection. The live transport, if any, is
// closed first and the new one opened once it has fully closed. Requests
// made while one is already pending are coalesced.
func (s *Session) Reconnect() {
	select {
	case s.reconnectCh <- struct{}{}:
	default:
	}
}

// Stream connects and keeps the subscription alive until ctx is cancelled,
// then closes the transport and returns nil. It may be called once.
func (s *Session) Stream(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(s.done)

	s.log.Info("Starting to stream sentiment data", zap.String("url", s.url))
	s.connect(ctx)

	for {
		var retryC <-chan time.Time
		if s.retry != nil {
			retryC = s.retry.Chan()
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev := <-s.mailbox:
			if stop := s.handle(ctx, ev); stop {
				s.shutdown()
				return nil
			}
		case <-s.reconnectCh:
			s.manualReconnect(ctx)
		case <-retryC:
			s.retry = nil
			s.connect(ctx)
		}
	}
}

func (s *Session) connect(ctx context.Context) {
	s.gen++
	s.attempt = uuid.NewString()
	s.errReported = false
	s.setState(StateConnecting)
	s.observer.ConnectAttempt(s.fragment)
	s.log.Info("Connecting to websocket", zap.String("attempt", s.attempt))

	s.current = s.dialer.Open(ctx, s.url, transportEvents{s: s, gen: s.gen})
}

// handle applies one transport event. It reports whether the session must stop.
func (s *Session) handle(ctx context.Context, ev event) bool {
	if ev.gen != s.gen {
		s.log.Debug("Dropping event from replaced connection", zap.Uint64("gen", ev.gen))
		return false
	}

	switch ev.kind {
	case eventOpen:
		s.setState(StateAwaitingAck)
		s.log.Info("WebSocket opened", zap.String("attempt", s.attempt))
		go s.sendHandshake(s.current, s.attempt)
	case eventMessage:
		s.handleMessage(ev.data)
	case eventError:
		s.log.Error("WebSocket error", zap.String("attempt", s.attempt), zap.Error(ev.err))
		s.errReported = true
		s.report(&TransportError{Err: ev.err})
	case eventClose:
		return s.handleClose(ctx, ev.code, ev.reason)
	}
	return false
}

// sendHandshake runs detached from the event loop so a slow write cannot
// stall event delivery.
func (s *Session) sendHandshake(t Transport, attempt string) {
	if err := t.Send(s.handshake); err != nil {
		s.log.Error("Error sending handshake", zap.String("attempt", attempt), zap.Error(err))
		return
	}
	s.log.Debug("Handshake sent", zap.String("attempt", attempt))
}

func (s *Session) handleMessage(data []byte) {
	if s.State() == StateRejected {
		s.log.Debug("Dropping message on rejected connection")
		return
	}

	s.log.Debug("Received message", zap.ByteString("payload", data))
	kind, err := s.dispatcher.Dispatch(data)
	if err != nil {
		s.observer.ParseError(s.fragment)
		s.log.Error("Error parsing message", zap.Error(err))
		s.report(err)
		return
	}
	s.observer.Message(s.fragment, string(kind))
}

func (s *Session) handleAck(ack HandshakeAck) {
	if !ack.Authenticated {
		s.setState(StateRejected)
		s.observer.AuthFailure(s.fragment)
		err := &AuthenticationError{Fragment: s.fragment}
		s.log.Error("WebSocket authentication failed", zap.String("attempt", s.attempt), zap.Error(err))
		s.report(err)
		return
	}

	s.streamingSince = s.clock.Now()
	s.setState(StateStreaming)
	s.log.Info("WebSocket authentication successful",
		zap.String("as_of", ack.Timestamp.UTC().Format(ackTimeFormat)),
		zap.String("attempt", s.attempt))
	s.log.Info("Subscribed to the following stocks", zap.String("symbols", strings.Join(ack.SubscribedTo, ", ")))
}

func (s *Session) handleClose(ctx context.Context, code int, reason string) bool {
	// only a stream that stayed up for backoffMin clears the failure count
	if s.State() == StateStreaming && s.clock.Since(s.streamingSince) >= s.backoffMin {
		s.failures = 0
	}
	s.current = nil
	s.observer.Closed(s.fragment, code)
	s.setState(StateDisconnected)
	s.log.Warn("WebSocket closed",
		zap.Int("code", code),
		zap.String("reason", reason),
		zap.String("attempt", s.attempt))

	if ctx.Err() != nil {
		return true
	}

	if s.reconnectPending {
		s.reconnectPending = false
		s.connect(ctx)
		return false
	}

	// the failure behind this close has already been reported
	if !s.errReported {
		s.report(&TransportError{Code: code, Reason: reason})
	}
	s.scheduleReconnect(ctx)
	return false
}

func (s *Session) manualReconnect(ctx context.Context) {
	s.log.Info("Manual reconnect requested")
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.failures = 0

	if s.current == nil {
		s.connect(ctx)
		return
	}
	if s.reconnectPending {
		return
	}
	s.reconnectPending = true
	if err := s.current.Close(); err != nil {
		s.log.Warn("Error closing connection", zap.Error(err))
	}
}

func (s *Session) scheduleReconnect(ctx context.Context) {
	delay := s.nextBackoff()
	if delay <= 0 {
		s.log.Info("Attempting to reconnect")
		s.connect(ctx)
		return
	}

	s.log.Info("Waiting before reconnecting", zap.Duration("backoff", delay))
	s.retry = s.clock.NewTimer(delay)
}

// nextBackoff is zero for the first failure, then doubles from backoffMin up
// to backoffMax.
func (s *Session) nextBackoff() time.Duration {
	n := s.failures
	s.failures++
	if n == 0 {
		return 0
	}

	delay := s.backoffMin
	for i := 1; i < n && delay < s.backoffMax; i++ {
		delay *= 2
	}
	if delay > s.backoffMax {
		delay = s.backoffMax
	}
	return delay
}

func (s *Session) shutdown() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	if s.current != nil {
		if err := s.current.Close(); err != nil {
			s.log.Warn("Error closing connection", zap.Error(err))
		}
		s.current = nil
	}
	s.setState(StateDisconnected)
	s.log.Info("Not reconnecting WebSocket, stream cancelled")
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	s.observer.StateChanged(s.fragment, int(next))
	if prev != next {
		s.log.Debug("State changed", zap.Stringer("from", prev), zap.Stringer("to", next))
	}
}

func (s *Session) report(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// post hands an event to the Stream goroutine. It gives up once the session
// has stopped.
func (s *Session) post(ev event) {
	select {
	case s.mailbox <- ev:
	case <-s.done:
	}
}

// transportEvents tags events with the connection generation they belong to.
type transportEvents struct {
	s   *Session
	gen uint64
}

func (e transportEvents) OnOpen() {
	e.s.post(event{kind: eventOpen, gen: e.gen})
}

func (e transportEvents) OnMessage(data []byte) {
	e.s.post(event{kind: eventMessage, gen: e.gen, data: data})
}

func (e transportEvents) OnError(err error) {
	e.s.post(event{kind: eventError, gen: e.gen, err: err})
}

func (e transportEvents) OnClose(code int, reason string) {
	e.s.post(event{kind: eventClose, gen: e.gen, code: code, reason: reason})
}
