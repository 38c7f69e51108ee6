package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts order lifecycle transitions and money movements.
type OrderMetrics struct {
	created       *prometheus.CounterVec
	cancelled     prometheus.Counter
	captured      *prometheus.CounterVec
	refunds       *prometheus.CounterVec
	refundedCents *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders created by payment method.",
		}, []string{"payment_method"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_cancelled_total",
			Help: "Orders cancelled by customers.",
		}),
		captured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_captured_total",
			Help: "Payments captured by provider.",
		}, []string{"provider"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Refunds issued by provider.",
		}, []string{"provider"}),
		refundedCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refunded_amount_cents_total",
			Help: "Refunded amount in minor units by currency.",
		}, []string{"currency"}),
	}
	reg.MustRegister(m.created, m.cancelled, m.captured, m.refunds, m.refundedCents)
	return m
}

func (m *OrderMetrics) IncCreated(paymentMethod string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(paymentMethod)).Inc()
}

func (m *OrderMetrics) IncCancelled() {
	if m == nil || m.cancelled == nil {
		return
	}
	m.cancelled.Inc()
}

func (m *OrderMetrics) IncCaptured(provider string) {
	if m == nil || m.captured == nil {
		return
	}
	m.captured.WithLabelValues(normalizeLabel(provider)).Inc()
}

// ObserveRefund counts one refund and adds its amount.
func (m *OrderMetrics) ObserveRefund(provider, currency string, amountCents int64) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(provider)).Inc()
	if amountCents > 0 {
		m.refundedCents.WithLabelValues(normalizeLabel(currency)).Add(float64(amountCents))
	}
}
