package models

import "time"

// PredictionResult is the per-row output of the hybrid predictor.
type PredictionResult struct {
	Timestamp           time.Time `json:"timestamp"`
	EnsembleProbability float64   `json:"ensemble_probability"`
	SequenceProbability float64   `json:"sequence_probability"`
	TabularProbability  float64   `json:"tabular_probability"`
}

// RecurringCause summarises how often a root cause showed up across recent reports.
type RecurringCause struct {
	Issue         string    `json:"issue"`
	Category      Category  `json:"category"`
	Metric        Field     `json:"metric"`
	Occurrences   int       `json:"occurrences"`
	Prevalence    float64   `json:"prevalence"`
	CriticalShare float64   `json:"critical_share"`
	MeanValue     float64   `json:"mean_value"`
	LastSeen      time.Time `json:"last_seen"`
}
