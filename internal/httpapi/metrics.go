package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        prometheus.Gauge
	wsConnections       prometheus.GaugeFunc
)

// RegisterMetrics initialises the HTTP metric vectors on the default
// registry and returns the /metrics handler. connCount feeds the live
// websocket gauge.
func RegisterMetrics(connCount func() int) http.Handler {
	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests served",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests currently being served",
		})

		wsConnections = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "push_connections",
			Help: "Live websocket connections",
		}, func() float64 { return float64(connCount()) })

		prometheus.MustRegister(httpRequestsTotal, httpRequestDuration,
			httpInflight, wsConnections)
	})
	return promhttp.Handler()
}

// observe records one request into the prometheus vectors. No-op until
// RegisterMetrics has run.
func observe(method, path string, status int, elapsed time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
