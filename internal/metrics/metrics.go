package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "neochat_ws_sessions",
		Help: "Current number of authenticated websocket sessions",
	})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "neochat_messages_total",
		Help: "Total number of chat messages persisted and delivered",
	})
	WsEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "neochat_ws_events_total",
		Help: "Inbound websocket events by type",
	}, []string{"type"})
	WsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "neochat_ws_rejected_total",
		Help: "Inbound websocket events answered with an error, by reason",
	}, []string{"reason"})
	ScheduledDeliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "neochat_scheduled_delivered_total",
		Help: "Scheduled messages promoted to live delivery",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		WsMessagesTotal,
		WsEventsTotal,
		WsRejectedTotal,
		ScheduledDeliveredTotal,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标。/ws 是长连接，只计数不计时长。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		if path != "/ws" {
			HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
		}
	}
}
