package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ZhouDavid/sentiment-stream/pkg/record"
	"github.com/ZhouDavid/sentiment-stream/pkg/stream"
)

// Querier is the subset of the REST client the gateway serves.
type Querier interface {
	Parsed(ctx context.Context, symbol string) (record.Record, error)
	Raw(ctx context.Context, symbol string) (record.Record, error)
	Quote(ctx context.Context, symbol string, enrich bool) (record.Record, error)
	Sort(ctx context.Context, metric string, limit int) ([]record.Record, error)
	Historical(ctx context.Context, symbol, metric string, start, end time.Time) (map[float64]float64, error)
	Supported(ctx context.Context, symbol string) (bool, error)
	AllStocks(ctx context.Context) ([]string, error)
}

// Service keeps the latest streamed snapshot per symbol next to the REST
// querier.
type Service struct {
	querier  Querier
	streamer stream.SentimentStreamer

	snapshotMutex sync.RWMutex
	snapshots     map[string]Snapshot
}

// Snapshot is the most recent streamed update for a symbol.
type Snapshot struct {
	Symbol     string        `json:"symbol"`
	Data       record.Record `json:"data"`
	ReceivedAt time.Time     `json:"received_at"`
}

// NewService creates a new gateway service. streamer may be nil when the
// gateway runs without a live subscription.
func NewService(querier Querier, streamer stream.SentimentStreamer) *Service {
	return &Service{
		querier:   querier,
		streamer:  streamer,
		snapshots: make(map[string]Snapshot),
	}
}

// SetStreamer attaches the live subscription once it has been built. Call
// before serving requests.
func (s *Service) SetStreamer(streamer stream.SentimentStreamer) {
	s.streamer = streamer
}

// HandleUpdate is a stream.UpdateHandler that caches each update under its
// symbol. Updates without a symbol are ignored.
func (s *Service) HandleUpdate(u stream.Update) {
	symbol, ok := u.String("symbol")
	if !ok || symbol == "" {
		return
	}
	symbol = normalize(symbol)

	s.snapshotMutex.Lock()
	s.snapshots[symbol] = Snapshot{Symbol: symbol, Data: u, ReceivedAt: time.Now().UTC()}
	s.snapshotMutex.Unlock()
}

// Latest returns the cached snapshot for symbol.
func (s *Service) Latest(symbol string) (Snapshot, bool) {
	s.snapshotMutex.RLock()
	defer s.snapshotMutex.RUnlock()
	snap, ok := s.snapshots[normalize(symbol)]
	return snap, ok
}

// Tracked returns how many symbols have a cached snapshot.
func (s *Service) Tracked() int {
	s.snapshotMutex.RLock()
	defer s.snapshotMutex.RUnlock()
	return len(s.snapshots)
}

// StreamState reports the live subscription state, if there is one.
func (s *Service) StreamState() (stream.State, bool) {
	if s.streamer == nil {
		return stream.StateDisconnected, false
	}
	return s.streamer.State(), true
}

// Reconnect asks the live subscription for a fresh connection. It reports
// false when there is no subscription.
func (s *Service) Reconnect() bool {
	if s.streamer == nil {
		return false
	}
	s.streamer.Reconnect()
	return true
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
