package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed filter passes.
	OutcomeSuccess = "success"
	// OutcomeError labels failed filter passes.
	OutcomeError = "error"
)

var (
	filterPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "farewatcher",
			Name:      "filter_passes_total",
			Help:      "Total monitoring passes per filter, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	breaksDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "farewatcher",
			Name:      "breaks_detected_total",
			Help:      "Total accepted price breaks.",
		},
	)

	suppressionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "farewatcher",
			Name:      "suppressions_total",
			Help:      "Breaks suppressed before delivery, partitioned by cause.",
		},
		[]string{"cause"},
	)

	fetchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "farewatcher",
			Name:      "fetch_seconds",
			Help:      "Quote fetch latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 45},
		},
	)
)

// Register attaches farewatcher collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		filterPassesTotal,
		breaksDetectedTotal,
		suppressionsTotal,
		fetchDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveFilterPass records one filter pass outcome.
func ObserveFilterPass(outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	filterPassesTotal.WithLabelValues(label).Inc()
}

// ObserveBreak records an accepted break.
func ObserveBreak() {
	breaksDetectedTotal.Inc()
}

// ObserveSuppression records a suppressed break by cause.
func ObserveSuppression(cause string) {
	suppressionsTotal.WithLabelValues(cause).Inc()
}

// ObserveFetch records a quote fetch duration.
func ObserveFetch(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	fetchDurationSeconds.Observe(duration.Seconds())
}
