package gateway

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ZhouDavid/sentiment-stream/internal/metrics"
)

// NewRouter registers every gateway route.
func NewRouter(handler *Handler, reg *prometheus.Registry, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "up",
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler(reg)))

	v1 := r.Group("/v1")
	v1.GET("/quote/:symbol", handler.GetQuote)
	v1.GET("/parsed/:symbol", handler.GetParsed)
	v1.GET("/raw/:symbol", handler.GetRaw)
	v1.GET("/sort", handler.GetSort)
	v1.GET("/historical/:symbol", handler.GetHistorical)
	v1.GET("/supported/:symbol", handler.GetSupported)
	v1.GET("/all-stocks", handler.GetAllStocks)

	v1.GET("/stream", handler.GetStreamStatus)
	v1.GET("/stream/:symbol", handler.GetLatest)
	v1.POST("/stream/reconnect", handler.PostReconnect)

	return r
}
