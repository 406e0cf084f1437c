package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ActiveConnections    prometheus.Gauge
	ConnectionsTotal     prometheus.Counter
	MessagesReceived     *prometheus.CounterVec
	MessagesSent         prometheus.Counter
	NotificationsCreated prometheus.Counter
	RateLimited          prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifyd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifyd_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "notifyd_ws_active_connections",
			Help: "Open notification channels",
		}),
		ConnectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "notifyd_ws_connections_total",
			Help: "Accepted notification channels",
		}),
		MessagesReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifyd_ws_messages_received_total",
				Help: "Client commands received, by type",
			},
			[]string{"type"},
		),
		MessagesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "notifyd_ws_messages_sent_total",
			Help: "Messages queued to clients",
		}),
		NotificationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "notifyd_notifications_created_total",
			Help: "Notifications stored",
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "notifyd_ws_rate_limited_total",
			Help: "Client commands rejected by the rate limiter",
		}),
	}
}

// newRegistry returns a registry with the process and Go collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// requestMetrics records per-route request counts and latency.
func (m *Metrics) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
