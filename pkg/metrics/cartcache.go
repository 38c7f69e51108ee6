package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reconciliation outcomes recorded by the client cart cache.
const (
	ReconcileApplied  = "applied"
	ReconcileStale    = "stale"
	ReconcileRollback = "rollback"
	ReconcileFailed   = "failed"
)

// CartCacheMetrics counts how resyncs were applied to the local cart.
type CartCacheMetrics struct {
	reconciliations *prometheus.CounterVec
	mutations       *prometheus.CounterVec
}

// NewCartCacheMetrics registers the cart cache metrics on the provided registerer.
func NewCartCacheMetrics(reg prometheus.Registerer) *CartCacheMetrics {
	if reg == nil {
		return &CartCacheMetrics{}
	}
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cartcache_reconciliations_total",
		Help: "Cart resync outcomes.",
	}, []string{"outcome"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cartcache_mutations_total",
		Help: "Local cart mutations by operation and result.",
	}, []string{"op", "result"})
	reg.MustRegister(reconciliations, mutations)
	return &CartCacheMetrics{reconciliations: reconciliations, mutations: mutations}
}

func (m *CartCacheMetrics) IncReconcile(outcome string) {
	if m == nil || m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CartCacheMetrics) IncMutation(op string, ok bool) {
	if m == nil || m.mutations == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.mutations.WithLabelValues(normalizeLabel(op), result).Inc()
}
