package gateway

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics 网关转发指标，每个网关实例独立注册
type metrics struct {
	registry *prometheus.Registry
	inFlight prometheus.Gauge
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rejected *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_in_flight_requests",
			Help: "In-flight proxied requests.",
		}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Proxied requests by upstream service and status.",
			},
			[]string{"service", "method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Upstream latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rejected_total",
				Help: "Requests answered by the gateway without reaching an upstream.",
			},
			[]string{"reason"},
		),
	}
	m.registry.MustRegister(
		m.inFlight, m.requests, m.duration, m.rejected,
		collectors.NewGoCollector(),
	)
	return m
}

// observe 记录一次转发
func (m *metrics) observe(service, method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(service, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// reject 记录网关直接拒绝的请求
func (m *metrics) reject(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// handler Prometheus 抓取端点
func (m *metrics) handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
