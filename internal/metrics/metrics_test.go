package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStreamMetrics(reg)

	m.ConnectAttempt("stocks")
	m.ConnectAttempt("stocks")
	m.Closed("stocks", 1006)
	m.Message("stocks", "update")
	m.ParseError("stocks")
	m.AuthFailure("all")
	m.StateChanged("stocks", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("stocks")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Closes.WithLabelValues("stocks", "1006")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("stocks", "update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParseErrors.WithLabelValues("stocks")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthFailures.WithLabelValues("all")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.State.WithLabelValues("stocks")))
}

func TestRESTMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRESTMetrics(reg)

	m.Observe("quote", 20*time.Millisecond, nil)
	m.Observe("quote", 30*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("quote", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("quote", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Duration))
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := NewRegistry()
	NewStreamMetrics(reg).ConnectAttempt("all")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sentiment_stream_connect_attempts_total{fragment="all"} 1`)
}
