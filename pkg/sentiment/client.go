// Package sentiment queries the sentiment service's REST endpoints.
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ZhouDavid/sentiment-stream/pkg/record"
	"github.com/ZhouDavid/sentiment-stream/pkg/stream"
)

// DefaultBaseURL is the REST API root.
const DefaultBaseURL = "https://api.sentimentinvestor.com/v4/"

const (
	defaultTimeout = 30 * time.Second
	resultsField   = "results"
)

// Observer receives one call per request. internal/metrics.RESTMetrics
// implements it.
type Observer interface {
	Observe(endpoint string, elapsed time.Duration, err error)
}

// Client is a REST client for the sentiment service. It is safe for
// concurrent use.
type Client struct {
	creds    stream.Credentials
	baseURL  string
	timeout  time.Duration
	http     *http.Client
	log      *zap.Logger
	observer Observer

	rest    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient sets the underlying HTTP client. Its transport is reused.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a new REST client.
func NewClient(creds stream.Credentials, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		creds:   creds,
		baseURL: DefaultBaseURL,
		timeout: defaultTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http != nil {
		c.rest = resty.NewWithClient(c.http)
	} else {
		c.rest = resty.New()
	}
	c.rest.
		SetBaseURL(strings.TrimRight(c.baseURL, "/")).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json")

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sentiment-rest",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: countsAsHealthy,
	})

	return c, nil
}

// countsAsHealthy keeps caller mistakes from tripping the breaker. Only
// transport failures and server errors count against it.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status < http.StatusInternalServerError
	}
	return false
}

// Credentials returns the token and key the client authenticates with.
func (c *Client) Credentials() stream.Credentials { return c.creds }

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() gobreaker.State { return c.breaker.State() }

// Parsed returns the four core metrics for a symbol: AHI, RHI, SGP and sentiment.
func (c *Client) Parsed(ctx context.Context, symbol string) (record.Record, error) {
	return c.single(ctx, "parsed", map[string]string{"symbol": symbol})
}

// Raw returns the raw per-platform metrics for a symbol.
func (c *Client) Raw(ctx context.Context, symbol string) (record.Record, error) {
	return c.single(ctx, "raw", map[string]string{"symbol": symbol})
}

// Quote returns all realtime data for a symbol. Enriched quotes carry
// per-subreddit breakdowns.
func (c *Client) Quote(ctx context.Context, symbol string, enrich bool) (record.Record, error) {
	return c.single(ctx, "quote", map[string]string{
		"symbol": symbol,
		"enrich": strconv.FormatBool(enrich),
	})
}

// Sort ranks symbols by metric, returning at most limit entries.
func (c *Client) Sort(ctx context.Context, metric string, limit int) ([]record.Record, error) {
	return c.list(ctx, "sort", map[string]string{
		"metric": metric,
		"limit":  strconv.Itoa(limit),
	})
}

// Historical returns metric values for symbol between start and end, keyed by
// Unix timestamp in seconds.
func (c *Client) Historical(ctx context.Context, symbol, metric string, start, end time.Time) (map[float64]float64, error) {
	points, err := c.list(ctx, "historical", map[string]string{
		"symbol": symbol,
		"metric": metric,
		"start":  strconv.FormatInt(start.Unix(), 10),
		"end":    strconv.FormatInt(end.Unix(), 10),
	})
	if err != nil {
		return nil, err
	}

	out := make(map[float64]float64, len(points))
	for _, p := range points {
		ts, ok := p.Float("timestamp")
		if !ok {
			return nil, fmt.Errorf("%w: historical point without timestamp", ErrMalformedResponse)
		}
		v, ok := p.Float("data")
		if !ok {
			return nil, fmt.Errorf("%w: historical point without data", ErrMalformedResponse)
		}
		out[ts] = v
	}
	return out, nil
}

// Bulk returns quotes for several symbols at once.
func (c *Client) Bulk(ctx context.Context, symbols []string, enrich bool) ([]record.Record, error) {
	return c.list(ctx, "bulk", map[string]string{
		"symbols": strings.Join(symbols, ","),
		"enrich":  strconv.FormatBool(enrich),
	})
}

// All returns quotes for every tracked symbol. The call is slow.
func (c *Client) All(ctx context.Context, enrich bool) ([]record.Record, error) {
	return c.list(ctx, "all", map[string]string{"enrich": strconv.FormatBool(enrich)})
}

// Supported reports whether the service has data for symbol.
func (c *Client) Supported(ctx context.Context, symbol string) (bool, error) {
	resp, err := c.request(ctx, "supported", map[string]string{"symbol": symbol})
	if err != nil {
		return false, err
	}
	ok, found := resp.Bool(resultsField)
	if !found {
		return false, fmt.Errorf("%w: results is not a boolean", ErrMalformedResponse)
	}
	return ok, nil
}

// AllStocks returns every tracked symbol, sorted and without duplicates.
func (c *Client) AllStocks(ctx context.Context) ([]string, error) {
	resp, err := c.request(ctx, "all-stocks", nil)
	if err != nil {
		return nil, err
	}
	symbols, ok := resp.Strings(resultsField)
	if !ok {
		return nil, fmt.Errorf("%w: results is not a list of symbols", ErrMalformedResponse)
	}

	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// AccountInfo describes the authenticated account.
func (c *Client) AccountInfo(ctx context.Context) (record.Record, error) {
	resp, err := c.request(ctx, "account", nil)
	if err != nil {
		return record.Record{}, err
	}
	return resp.Without(resultsField), nil
}

// single flattens the results object into the top-level response fields.
func (c *Client) single(ctx context.Context, endpoint string, params map[string]string) (record.Record, error) {
	resp, err := c.request(ctx, endpoint, params)
	if err != nil {
		return record.Record{}, err
	}
	results, ok := resp.Record(resultsField)
	if !ok {
		return record.Record{}, fmt.Errorf("%w: %s results is not an object", ErrMalformedResponse, endpoint)
	}
	return resp.Without(resultsField).Merge(results), nil
}

func (c *Client) list(ctx context.Context, endpoint string, params map[string]string) ([]record.Record, error) {
	resp, err := c.request(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	v, _ := resp.Get(resultsField)
	items, ok := v.AsList()
	if !ok {
		return nil, fmt.Errorf("%w: %s results is not a list", ErrMalformedResponse, endpoint)
	}

	out := make([]record.Record, 0, len(items))
	for i, item := range items {
		r, ok := item.AsRecord()
		if !ok {
			return nil, fmt.Errorf("%w: %s result %d is not an object", ErrMalformedResponse, endpoint, i)
		}
		out = append(out, r.Without(resultsField))
	}
	return out, nil
}

// request performs one authenticated GET through the circuit breaker.
func (c *Client) request(ctx context.Context, endpoint string, params map[string]string) (record.Record, error) {
	start := time.Now()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, endpoint, params)
	})
	if c.observer != nil {
		c.observer.Observe(endpoint, time.Since(start), err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return record.Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		c.log.Debug("Request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return record.Record{}, err
	}
	return out.(record.Record), nil
}

func (c *Client) do(ctx context.Context, endpoint string, params map[string]string) (record.Record, error) {
	req := c.rest.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("token", c.creds.Token).
		SetQueryParam("key", c.creds.Key)

	resp, err := req.Get("/" + endpoint)
	if err != nil {
		return record.Record{}, fmt.Errorf("failed to send request: %w", err)
	}

	body := strings.TrimSpace(resp.String())
	if body == "invalid_parameter" || body == "incorrect_key" {
		return record.Record{}, ErrInvalidCredentials
	}

	data, err := record.Parse(resp.Body())
	if err != nil {
		if !resp.IsSuccess() {
			return record.Record{}, &APIError{Status: resp.StatusCode(), Message: body}
		}
		return record.Record{}, fmt.Errorf("%w: %s", ErrMalformedResponse, body)
	}

	if !resp.IsSuccess() {
		msg, _ := data.String("message")
		return record.Record{}, &APIError{Status: resp.StatusCode(), Message: msg}
	}
	return data, nil
}
