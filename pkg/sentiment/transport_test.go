package sentiment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockResponse struct {
	response *http.Response
	err      error
}

func newMockClient(responses []mockResponse) (*http.Client, *mockTransport) {
	transport := &mockTransport{responses: responses}
	return &http.Client{Transport: transport}, transport
}

type mockTransport struct {
	responses []mockResponse
	current   int
	requests  []*http.Request
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.requests = append(m.requests, req)
	if m.current >= len(m.responses) {
		return nil, fmt.Errorf("no more responses")
	}
	resp := m.responses[m.current]
	m.current++
	return resp.response, resp.err
}

func newMockResponse(statusCode int, body string) mockResponse {
	return mockResponse{
		response: &http.Response{
			StatusCode: statusCode,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(bytes.NewBufferString(body)),
		},
	}
}

func TestClient_WithHTTPClient(t *testing.T) {
	hc, transport := newMockClient([]mockResponse{
		newMockResponse(http.StatusOK, `{"success":true,"results":true}`),
	})

	c, err := NewClient(testCreds, WithHTTPClient(hc))
	require.NoError(t, err)

	ok, err := c.Supported(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, transport.requests, 1)
	req := transport.requests[0]
	assert.Equal(t, "api.sentimentinvestor.com", req.URL.Host)
	assert.Equal(t, "/v4/supported", req.URL.Path)
	assert.Equal(t, "AAPL", req.URL.Query().Get("symbol"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
}

func TestClient_TransportFailuresTripBreaker(t *testing.T) {
	refused := errors.New("connection refused")
	responses := make([]mockResponse, 5)
	for i := range responses {
		responses[i] = mockResponse{err: refused}
	}
	hc, transport := newMockClient(responses)

	c, err := NewClient(testCreds, WithHTTPClient(hc))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := c.AllStocks(context.Background())
		assert.ErrorIs(t, err, refused)
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	_, err = c.AllStocks(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, transport.requests, 5)
}
