package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the consensus engine.
type Metrics struct {
	headersAdmitted prometheus.Counter
	headersRejected *prometheus.CounterVec
	revealsValid    prometheus.Counter
	revealsRejected *prometheus.CounterVec
	reorgs          prometheus.Counter
	bestTipHeight   prometheus.Gauge
	bestTipWork     prometheus.Gauge
}

// NewMetrics creates and registers the engine metrics. Registering an
// already-registered collector is tolerated so tests can build multiple
// engines in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		headersAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solvenet_headers_admitted_total",
			Help: "Headers admitted to the block tree.",
		}),
		headersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solvenet_headers_rejected_total",
			Help: "Headers rejected, partitioned by reason.",
		}, []string{"reason"}),
		revealsValid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solvenet_reveals_valid_total",
			Help: "Reveals that passed commitment and solver verification.",
		}),
		revealsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solvenet_reveals_rejected_total",
			Help: "Reveals rejected, partitioned by reason.",
		}, []string{"reason"}),
		reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solvenet_reorgs_total",
			Help: "Completed chain reorganizations.",
		}),
		bestTipHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solvenet_best_tip_height",
			Help: "Height of the current best tip.",
		}),
		bestTipWork: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solvenet_best_tip_cumulative_work",
			Help: "Cumulative work of the current best tip.",
		}),
	}
	m.headersAdmitted = registerOnce(m.headersAdmitted).(prometheus.Counter)
	m.headersRejected = registerOnce(m.headersRejected).(*prometheus.CounterVec)
	m.revealsValid = registerOnce(m.revealsValid).(prometheus.Counter)
	m.revealsRejected = registerOnce(m.revealsRejected).(*prometheus.CounterVec)
	m.reorgs = registerOnce(m.reorgs).(prometheus.Counter)
	m.bestTipHeight = registerOnce(m.bestTipHeight).(prometheus.Gauge)
	m.bestTipWork = registerOnce(m.bestTipWork).(prometheus.Gauge)
	return m
}

func registerOnce(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (m *Metrics) headerAdmitted() {
	if m == nil {
		return
	}
	m.headersAdmitted.Inc()
}

func (m *Metrics) headerRejected(reason HeaderReason) {
	if m == nil {
		return
	}
	m.headersRejected.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) revealValid() {
	if m == nil {
		return
	}
	m.revealsValid.Inc()
}

func (m *Metrics) revealRejected(reason RevealReason) {
	if m == nil {
		return
	}
	m.revealsRejected.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) reorgCompleted() {
	if m == nil {
		return
	}
	m.reorgs.Inc()
}

func (m *Metrics) tipChanged(height uint64, cumulativeWork float64) {
	if m == nil {
		return
	}
	m.bestTipHeight.Set(float64(height))
	m.bestTipWork.Set(cumulativeWork)
}
