package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics — метрики HTTP-слоя.
type HTTPMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
}

// NewHTTPMetrics создаёт метрики HTTP в DefaultRegisterer.
func NewHTTPMetrics() *HTTPMetrics {
	return NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewHTTPMetricsWithRegisterer создаёт метрики HTTP в переданном registerer.
func NewHTTPMetricsWithRegisterer(registerer prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requestDuration: register(registerer, "orders_http_request_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orders_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})),
		requestsTotal: register(registerer, "orders_http_requests_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_http_requests_total",
			Help: "Total number of HTTP requests by status code",
		}, []string{"method", "route", "code"})),
	}
}

// ObserveRequest записывает длительность и код ответа запроса.
// route — шаблон маршрута (`/orders/{uuid}`), а не фактический путь.
func (m *HTTPMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
