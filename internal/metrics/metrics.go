package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatty_ws_active_connections",
		Help: "Open websocket connections, including superseded tabs",
	})

	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatty_online_users",
		Help: "Users present in the presence directory",
	})

	Pushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatty_ws_pushes_total",
		Help: "Targeted pushes by event and result (delivered, offline, dropped)",
	}, []string{"event", "result"})

	BotReplies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatty_bot_replies_total",
		Help: "Bot replies by outcome (generated, fallback)",
	}, []string{"outcome"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatty_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	once sync.Once
)

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(Connections, OnlineUsers, Pushes, BotReplies, HTTPDuration)
	})
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request latency per matched route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
