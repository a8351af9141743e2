package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ZhouDavid/sentiment-stream/pkg/record"
	"github.com/ZhouDavid/sentiment-stream/pkg/sentiment"
	"github.com/ZhouDavid/sentiment-stream/pkg/stream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQuerier struct {
	err        error
	lastSymbol string
	lastEnrich bool
	lastStart  time.Time
	lastEnd    time.Time
}

func mustParse(s string) record.Record {
	r, err := record.Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return r
}

func (f *fakeQuerier) Parsed(_ context.Context, symbol string) (record.Record, error) {
	f.lastSymbol = symbol
	return mustParse(`{"symbol":"` + symbol + `","AHI":0.85}`), f.err
}

func (f *fakeQuerier) Raw(_ context.Context, symbol string) (record.Record, error) {
	f.lastSymbol = symbol
	return mustParse(`{"symbol":"` + symbol + `","tweet_mentions":3}`), f.err
}

func (f *fakeQuerier) Quote(_ context.Context, symbol string, enrich bool) (record.Record, error) {
	f.lastSymbol = symbol
	f.lastEnrich = enrich
	return mustParse(`{"symbol":"` + symbol + `","AHI":0.84,"RHI":1.2}`), f.err
}

func (f *fakeQuerier) Sort(_ context.Context, metric string, limit int) ([]record.Record, error) {
	out := make([]record.Record, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, mustParse(fmt.Sprintf(`{"rank":%d,"metric":%q}`, i, metric)))
	}
	return out, f.err
}

func (f *fakeQuerier) Historical(_ context.Context, symbol, _ string, start, end time.Time) (map[float64]float64, error) {
	f.lastSymbol = symbol
	f.lastStart = start
	f.lastEnd = end
	return map[float64]float64{30: 0.3, 10: 0.1, 20: 0.2}, f.err
}

func (f *fakeQuerier) Supported(_ context.Context, symbol string) (bool, error) {
	return symbol == "AAPL", f.err
}

func (f *fakeQuerier) AllStocks(context.Context) ([]string, error) {
	return []string{"AAPL", "TSLA"}, f.err
}

type fakeStreamer struct {
	state      stream.State
	reconnects int
}

func (f *fakeStreamer) Stream(context.Context) error { return nil }
func (f *fakeStreamer) Reconnect()                   { f.reconnects++ }
func (f *fakeStreamer) State() stream.State          { return f.state }

func newTestRouter(q Querier, s stream.SentimentStreamer) (*gin.Engine, *Service) {
	svc := NewService(q, s)
	return NewRouter(NewHandler(svc, zap.NewNop()), prometheus.NewRegistry(), zap.NewNop()), svc
}

func do(t *testing.T, r http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))

	var body map[string]any
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(&fakeQuerier{}, nil)

	w, body := do(t, r, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "up", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(&fakeQuerier{}, nil)

	w, _ := do(t, r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetQuote(t *testing.T) {
	q := &fakeQuerier{}
	r, _ := newTestRouter(q, nil)

	w, _ := do(t, r, http.MethodGet, "/v1/quote/TSLA?enrich=true")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "TSLA", q.lastSymbol)
	assert.True(t, q.lastEnrich)
	assert.JSONEq(t, `{"symbol":"TSLA","AHI":0.84,"RHI":1.2}`, w.Body.String())
	assert.Equal(t, `{"symbol":"TSLA","AHI":0.84,"RHI":1.2}`, w.Body.String(), "field order is preserved")
}

func TestGetParsedAndRaw(t *testing.T) {
	r, _ := newTestRouter(&fakeQuerier{}, nil)

	w, body := do(t, r, http.MethodGet, "/v1/parsed/AAPL")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.85, body["AHI"])

	w, body = do(t, r, http.MethodGet, "/v1/raw/AAPL")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3.0, body["tweet_mentions"])
}

func TestGetSort(t *testing.T) {
	r, _ := newTestRouter(&fakeQuerier{}, nil)

	w, body := do(t, r, http.MethodGet, "/v1/sort?metric=AHI&limit=3")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["results"], 3)

	w, _ = do(t, r, http.MethodGet, "/v1/sort?metric=AHI")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/v1/sort?limit=3")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetHistorical(t *testing.T) {
	q := &fakeQuerier{}
	r, _ := newTestRouter(q, nil)

	w, _ := do(t, r, http.MethodGet, "/v1/historical/AAPL?metric=RHI&start=1614556869&end=1619654469")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1614556869), q.lastStart.Unix())
	assert.Equal(t, int64(1619654469), q.lastEnd.Unix())
	assert.JSONEq(t, `{
		"symbol": "AAPL",
		"metric": "RHI",
		"results": [
			{"timestamp": 10, "data": 0.1},
			{"timestamp": 20, "data": 0.2},
			{"timestamp": 30, "data": 0.3}
		]
	}`, w.Body.String())

	w, _ = do(t, r, http.MethodGet, "/v1/historical/AAPL?metric=RHI&start=200&end=100")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSupportedAndAllStocks(t *testing.T) {
	r, _ := newTestRouter(&fakeQuerier{}, nil)

	_, body := do(t, r, http.MethodGet, "/v1/supported/AAPL")
	assert.Equal(t, true, body["supported"])

	_, body = do(t, r, http.MethodGet, "/v1/supported/SNTPY")
	assert.Equal(t, false, body["supported"])

	_, body = do(t, r, http.MethodGet, "/v1/all-stocks")
	assert.Equal(t, []any{"AAPL", "TSLA"}, body["results"])
}

func TestUpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "bad credentials", err: sentiment.ErrInvalidCredentials, want: http.StatusBadGateway},
		{name: "breaker open", err: fmt.Errorf("%w: circuit breaker is open", sentiment.ErrUnavailable), want: http.StatusServiceUnavailable},
		{name: "client error passes through", err: &sentiment.APIError{Status: http.StatusTooManyRequests, Message: "slow down"}, want: http.StatusTooManyRequests},
		{name: "server error", err: &sentiment.APIError{Status: http.StatusInternalServerError, Message: "boom"}, want: http.StatusBadGateway},
		{name: "malformed", err: sentiment.ErrMalformedResponse, want: http.StatusBadGateway},
		{name: "other", err: context.DeadlineExceeded, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(&fakeQuerier{err: tt.err}, nil)

			w, body := do(t, r, http.MethodGet, "/v1/quote/AAPL")
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestStreamSnapshots(t *testing.T) {
	streamer := &fakeStreamer{state: stream.StateStreaming}
	r, svc := newTestRouter(&fakeQuerier{}, streamer)

	w, _ := do(t, r, http.MethodGet, "/v1/stream/AAPL")
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.HandleUpdate(mustParse(`{"symbol":"aapl","AHI":0.84}`))
	svc.HandleUpdate(mustParse(`{"symbol":"AAPL","AHI":0.91}`))
	svc.HandleUpdate(mustParse(`{"AHI":1.0}`))

	w, body := do(t, r, http.MethodGet, "/v1/stream/aapl")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, map[string]any{"symbol": "AAPL", "AHI": 0.91}, body["data"])
	assert.NotEmpty(t, body["received_at"])

	_, body = do(t, r, http.MethodGet, "/v1/stream")
	assert.Equal(t, "streaming", body["state"])
	assert.Equal(t, 1.0, body["tracked"])
}

func TestPostReconnect(t *testing.T) {
	streamer := &fakeStreamer{state: stream.StateStreaming}
	r, _ := newTestRouter(&fakeQuerier{}, streamer)

	w, body := do(t, r, http.MethodPost, "/v1/stream/reconnect")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "reconnecting", body["status"])
	assert.Equal(t, 1, streamer.reconnects)
}

func TestStreamingDisabled(t *testing.T) {
	r, _ := newTestRouter(&fakeQuerier{}, nil)

	w, _ := do(t, r, http.MethodPost, "/v1/stream/reconnect")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = do(t, r, http.MethodGet, "/v1/stream")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
