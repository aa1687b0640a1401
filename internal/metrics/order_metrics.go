package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
type OrderMetrics struct {
	// Счётчики переходов
	created   prometheus.Counter
	completed prometheus.Counter
	pending   prometheus.Counter
	cancelled prometheus.Counter
	removed   prometheus.Counter
	failed    *prometheus.CounterVec

	vouchersIssued  prometheus.Counter
	gatewayRequests *prometheus.CounterVec

	// Гистограмма времени выполнения операций
	operationDuration *prometheus.HistogramVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
	lifecycleSent  *prometheus.CounterVec
}

// NewOrderMetrics создаёт метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в заданном реестре (для тестов).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		created: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ticketing_orders_created_total",
			Help: "Total number of orders created",
		}),
		completed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ticketing_orders_completed_total",
			Help: "Total number of orders completed",
		}),
		pending: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ticketing_orders_pending_total",
			Help: "Total number of orders moved to pending",
		}),
		cancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ticketing_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		removed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ticketing_orders_removed_total",
			Help: "Total number of orders removed",
		}),
		failed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ticketing_orders_failed_total",
			Help: "Total number of failed order operations",
		}, []string{"operation"}),
		vouchersIssued: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ticketing_vouchers_issued_total",
			Help: "Total number of vouchers issued on completion",
		}),
		gatewayRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ticketing_payment_gateway_requests_total",
			Help: "Total number of payment gateway requests by result",
		}, []string{"result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ticketing_order_operation_duration_seconds",
			Help:    "Duration of order lifecycle operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ticketing_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ticketing_outbox_events_total",
			Help: "Total number of events enqueued into outbox",
		}),
		lifecycleSent: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ticketing_lifecycle_events_total",
			Help: "Total number of lifecycle events sent to kafka by result",
		}, []string{"result"}),
	}
}

// RecordTransition увеличивает счётчик успешной операции.
func (m *OrderMetrics) RecordTransition(op domain.Operation) {
	switch op {
	case domain.OperationCreate:
		m.created.Inc()
	case domain.OperationComplete:
		m.completed.Inc()
	case domain.OperationPending:
		m.pending.Inc()
	case domain.OperationCancel:
		m.cancelled.Inc()
	case domain.OperationRemove:
		m.removed.Inc()
	}
}

// RecordFailure увеличивает счётчик неудачных операций.
func (m *OrderMetrics) RecordFailure(op domain.Operation) {
	m.failed.WithLabelValues(string(op)).Inc()
}

// RecordDuration записывает время выполнения операции.
func (m *OrderMetrics) RecordDuration(op domain.Operation, duration time.Duration) {
	m.operationDuration.WithLabelValues(string(op)).Observe(duration.Seconds())
}

// RecordVouchersIssued увеличивает счётчик выданных ваучеров.
func (m *OrderMetrics) RecordVouchersIssued(n int) {
	m.vouchersIssued.Add(float64(n))
}

// RecordGatewayRequest учитывает обращение к платёжному шлюзу (result: success|error|open).
func (m *OrderMetrics) RecordGatewayRequest(result string) {
	m.gatewayRequests.WithLabelValues(result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordLifecycleEvent учитывает публикацию lifecycle-события в Kafka.
func (m *OrderMetrics) RecordLifecycleEvent(ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	m.lifecycleSent.WithLabelValues(result).Inc()
}
