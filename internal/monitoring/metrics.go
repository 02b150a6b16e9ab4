// Package monitoring exposes prometheus metrics for the evaluation engine
// and execution coordinator. All helper methods are nil-safe so callers can
// run without a registry in tests.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's operational instruments.
type Metrics struct {
	cyclesTotal       prometheus.Counter
	cycleDuration     prometheus.Histogram
	intentsTotal      *prometheus.CounterVec
	intentsSuppressed prometheus.Counter
	ordersSubmitted   prometheus.Counter
	ordersFailed      prometheus.Counter
	positionsSkipped  prometheus.Counter
	portfolioRiskPct  *prometheus.GaugeVec
}

// New registers the engine metrics on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riskbot",
			Name:      "cycles_total",
			Help:      "Completed evaluation cycles.",
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "riskbot",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one evaluation cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		intentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskbot",
			Name:      "intents_total",
			Help:      "Intents emitted by kind.",
		}, []string{"kind"}),
		intentsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riskbot",
			Name:      "intents_suppressed_total",
			Help:      "Intents suppressed by the outstanding-order tracker.",
		}),
		ordersSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riskbot",
			Name:      "orders_submitted_total",
			Help:      "Orders accepted by the exchange gateway.",
		}),
		ordersFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riskbot",
			Name:      "orders_failed_total",
			Help:      "Orders that exhausted their retry budget.",
		}),
		positionsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riskbot",
			Name:      "positions_skipped_total",
			Help:      "Positions skipped for stale or missing prices.",
		}),
		portfolioRiskPct: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "riskbot",
			Name:      "portfolio_risk_pct",
			Help:      "Latest assessed total risk percentage per portfolio.",
		}, []string{"portfolio_id"}),
	}
}

func (m *Metrics) CycleCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.cyclesTotal.Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) IntentEmitted(kind string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IntentSuppressed() {
	if m == nil {
		return
	}
	m.intentsSuppressed.Inc()
}

func (m *Metrics) OrderSubmitted() {
	if m == nil {
		return
	}
	m.ordersSubmitted.Inc()
}

func (m *Metrics) OrderFailed() {
	if m == nil {
		return
	}
	m.ordersFailed.Inc()
}

func (m *Metrics) PositionSkipped() {
	if m == nil {
		return
	}
	m.positionsSkipped.Inc()
}

func (m *Metrics) SetPortfolioRisk(portfolioID string, riskPct float64) {
	if m == nil {
		return
	}
	m.portfolioRiskPct.WithLabelValues(portfolioID).Set(riskPct)
}
