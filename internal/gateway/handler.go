package gateway

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ZhouDavid/sentiment-stream/pkg/sentiment"
)

// Handler handles HTTP requests for sentiment data
type Handler struct {
	service *Service
	log     *zap.Logger
}

// SortRequest represents a ranking query
type SortRequest struct {
	Metric string `form:"metric" binding:"required"`
	Limit  int    `form:"limit" binding:"required,min=1"`
}

// HistoricalRequest represents a historical data query. Start and End are
// Unix seconds.
type HistoricalRequest struct {
	Metric string `form:"metric" binding:"required"`
	Start  int64  `form:"start" binding:"required"`
	End    int64  `form:"end" binding:"required,gtefield=Start"`
}

// HistoricalPoint is one metric sample.
type HistoricalPoint struct {
	Timestamp float64 `json:"timestamp"`
	Data      float64 `json:"data"`
}

// NewHandler creates a new sentiment handler
func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log,
	}
}

// GetQuote handles requests for realtime quote data
func (h *Handler) GetQuote(c *gin.Context) {
	enrich := c.Query("enrich") == "true"
	quote, err := h.service.querier.Quote(c.Request.Context(), c.Param("symbol"), enrich)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// GetParsed handles requests for the core metrics
func (h *Handler) GetParsed(c *gin.Context) {
	parsed, err := h.service.querier.Parsed(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, parsed)
}

// GetRaw handles requests for raw platform metrics
func (h *Handler) GetRaw(c *gin.Context) {
	raw, err := h.service.querier.Raw(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, raw)
}

// GetSort handles requests for metric rankings
func (h *Handler) GetSort(c *gin.Context) {
	var req SortRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ranked, err := h.service.querier.Sort(c.Request.Context(), req.Metric, req.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": ranked})
}

// GetHistorical handles requests for historical metric values
func (h *Handler) GetHistorical(c *gin.Context) {
	var req HistoricalRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	series, err := h.service.querier.Historical(c.Request.Context(), c.Param("symbol"), req.Metric,
		time.Unix(req.Start, 0), time.Unix(req.End, 0))
	if err != nil {
		h.fail(c, err)
		return
	}

	points := make([]HistoricalPoint, 0, len(series))
	for ts, v := range series {
		points = append(points, HistoricalPoint{Timestamp: ts, Data: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })

	c.JSON(http.StatusOK, gin.H{"symbol": c.Param("symbol"), "metric": req.Metric, "results": points})
}

// GetSupported handles requests asking whether a symbol is tracked
func (h *Handler) GetSupported(c *gin.Context) {
	symbol := c.Param("symbol")
	ok, err := h.service.querier.Supported(c.Request.Context(), symbol)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "supported": ok})
}

// GetAllStocks handles requests for every tracked symbol
func (h *Handler) GetAllStocks(c *gin.Context) {
	symbols, err := h.service.querier.AllStocks(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": symbols})
}

// GetLatest handles requests for the most recent streamed snapshot
func (h *Handler) GetLatest(c *gin.Context) {
	snap, ok := h.service.Latest(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no streamed data for " + c.Param("symbol")})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetStreamStatus reports the live subscription state
func (h *Handler) GetStreamStatus(c *gin.Context) {
	state, ok := h.service.StreamState()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "streaming is disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state.String(), "tracked": h.service.Tracked()})
}

// PostReconnect forces the live subscription onto a fresh connection
func (h *Handler) PostReconnect(c *gin.Context) {
	if !h.service.Reconnect() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "streaming is disabled"})
		return
	}
	h.log.Info("Stream reconnect requested", zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusAccepted, gin.H{"status": "reconnecting"})
}

// fail maps an upstream error onto a response status.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var apiErr *sentiment.APIError

	switch {
	case errors.Is(err, sentiment.ErrInvalidCredentials):
		status = http.StatusBadGateway
	case errors.Is(err, sentiment.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, sentiment.ErrMalformedResponse):
		status = http.StatusBadGateway
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		if apiErr.Status < http.StatusInternalServerError {
			status = apiErr.Status
		}
	}

	h.log.Warn("Upstream request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}
