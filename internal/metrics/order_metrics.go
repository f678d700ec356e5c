package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Операции Order Store, используемые как значение label `operation`.
const (
	OperationList   = "list"
	OperationGet    = "get"
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
type OrderMetrics struct {
	ordersCreated prometheus.Counter
	ordersUpdated prometheus.Counter
	ordersDeleted prometheus.Counter

	// Отказы валидации по причине (user_required, item_not_found, ...).
	validationFailures *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec
	outboxEnqueued    prometheus.Counter
}

// NewOrderMetrics создаёт метрики заказов в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в переданном registerer.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		ordersCreated: register(registerer, "orders_created_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		})),
		ordersUpdated: register(registerer, "orders_updated_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_updated_total",
			Help: "Total number of orders whose items were replaced",
		})),
		ordersDeleted: register(registerer, "orders_deleted_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_deleted_total",
			Help: "Total number of orders deleted",
		})),
		validationFailures: register(registerer, "orders_validation_failures_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_validation_failures_total",
			Help: "Total number of rejected order requests by reason",
		}, []string{"operation", "reason"})),
		operationDuration: register(registerer, "orders_operation_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orders_operation_duration_seconds",
			Help:    "Duration of order store operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"})),
		outboxEnqueued: register(registerer, "orders_outbox_enqueued_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_outbox_enqueued_total",
			Help: "Total number of order events written to the outbox",
		})),
	}
}

// RecordCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordCreated() {
	m.ordersCreated.Inc()
}

// RecordUpdated увеличивает счётчик обновлённых заказов.
func (m *OrderMetrics) RecordUpdated() {
	m.ordersUpdated.Inc()
}

// RecordDeleted увеличивает счётчик удалённых заказов.
func (m *OrderMetrics) RecordDeleted() {
	m.ordersDeleted.Inc()
}

// RecordValidationFailure фиксирует отказ валидации.
func (m *OrderMetrics) RecordValidationFailure(operation, reason string) {
	m.validationFailures.WithLabelValues(operation, reason).Inc()
}

// RecordDuration записывает время выполнения операции.
func (m *OrderMetrics) RecordDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordOutboxEnqueued увеличивает счётчик событий, записанных в outbox.
func (m *OrderMetrics) RecordOutboxEnqueued() {
	m.outboxEnqueued.Inc()
}
