package metrics

import "github.com/prometheus/client_golang/prometheus"

// Tracker Prometheus metrics.
var (
	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokie",
			Name:      "tracker_mutations_total",
			Help:      "Total document mutations observed by the tracker",
		},
		[]string{"kind"}, // "childlist" / "chardata"
	)

	SettlementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tokie",
			Name:      "tracker_settlements_total",
			Help:      "Total full recounts performed at settlement",
		},
	)

	EstimatorRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tokie",
			Name:      "estimator_runs_total",
			Help:      "Total token estimation passes",
		},
	)

	StoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokie",
			Name:      "store_writes_total",
			Help:      "Total usage persistence attempts",
		},
		[]string{"status"}, // "ok" / "error"
	)

	SessionSwitchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tokie",
			Name:      "session_switches_total",
			Help:      "Total session identity changes handled",
		},
	)

	UsageTokens = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tokie",
			Name:      "usage_tokens",
			Help:      "Token usage of the active session",
		},
		[]string{"type"}, // "input" / "output" / "total"
	)
)

var registered bool

// Register registers tracker metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(MutationsTotal)
	prometheus.MustRegister(SettlementsTotal)
	prometheus.MustRegister(EstimatorRunsTotal)
	prometheus.MustRegister(StoreWritesTotal)
	prometheus.MustRegister(SessionSwitchesTotal)
	prometheus.MustRegister(UsageTokens)
	registered = true
}
