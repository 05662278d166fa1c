package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful evaluations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed evaluations (validation, predictor or source issues).
	OutcomeError = "error"
)

var (
	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_forecast",
			Name:      "evaluations_total",
			Help:      "Total number of pipeline evaluations, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	evaluationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_forecast",
			Name:      "evaluation_seconds",
			Help:      "Pipeline evaluation latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	degradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_forecast",
			Name:      "degraded_total",
			Help:      "Predictions served without a sub-model, partitioned by the missing sub-model.",
		},
		[]string{"submodel"},
	)

	trainingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_forecast",
			Name:      "training_runs_total",
			Help:      "Sub-model training attempts, partitioned by sub-model and status.",
		},
		[]string{"submodel", "status"},
	)

	alertsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_forecast",
			Name:      "alerts_emitted_total",
			Help:      "Alerts recorded, partitioned by severity.",
		},
		[]string{"severity"},
	)

	alertsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_forecast",
			Name:      "alerts_suppressed_total",
			Help:      "Alerts dropped by the per-condition cooldown.",
		},
	)

	healthScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mirador_forecast",
			Name:      "health_score",
			Help:      "Latest health score per deployment.",
		},
		[]string{"deployment"},
	)

	failureProbability = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mirador_forecast",
			Name:      "failure_probability",
			Help:      "Latest overall failure probability percentage per deployment.",
		},
		[]string{"deployment"},
	)
)

// Register attaches mirador-forecast collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		evaluationsTotal,
		evaluationDurationSeconds,
		degradedTotal,
		trainingRunsTotal,
		alertsEmittedTotal,
		alertsSuppressedTotal,
		healthScore,
		failureProbability,
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

// ObserveEvaluation records an evaluation duration and outcome label.
func ObserveEvaluation(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	evaluationsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	evaluationDurationSeconds.Observe(duration.Seconds())
}

// ObserveDegraded counts a prediction served without the named sub-model.
func ObserveDegraded(submodel string) {
	degradedTotal.WithLabelValues(submodel).Inc()
}

// ObserveTraining counts a sub-model training attempt.
func ObserveTraining(submodel, status string) {
	trainingRunsTotal.WithLabelValues(submodel, status).Inc()
}

// ObserveAlert counts a recorded alert.
func ObserveAlert(severity string) {
	alertsEmittedTotal.WithLabelValues(severity).Inc()
}

// ObserveSuppressed counts an alert dropped by the cooldown.
func ObserveSuppressed() {
	alertsSuppressedTotal.Inc()
}

// SetRisk publishes the latest health score and failure probability for a deployment.
func SetRisk(deployment string, health, probability float64) {
	if deployment == "" {
		deployment = "default"
	}
	healthScore.WithLabelValues(deployment).Set(health)
	failureProbability.WithLabelValues(deployment).Set(probability)
}
