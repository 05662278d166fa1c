package models

import "time"

// Trend captures the direction of recent health scores.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
	TrendCritical  Trend = "critical"
)

// Severity captures impact levels for root causes and alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Category groups root causes by the subsystem they implicate.
type Category string

const (
	CategoryModelPerformance Category = "Model Performance"
	CategoryPerformance      Category = "Performance"
	CategoryReliability      Category = "Reliability"
	CategoryInfrastructure   Category = "Infrastructure"
	CategoryDataQuality      Category = "Data Quality"
	CategoryCost             Category = "Cost"
)

// FailureProbability reports percentages in [0,100].
type FailureProbability struct {
	Overall    float64 `json:"overall"`
	Within24h  float64 `json:"24h"`
	Within48h  float64 `json:"48h"`
	Within72h  float64 `json:"72h"`
	Confidence float64 `json:"confidence"`
}

// RootCause is a single threshold breach contributing to risk.
type RootCause struct {
	Category     Category `json:"category"`
	Issue        string   `json:"issue"`
	Severity     Severity `json:"severity"`
	Metric       Field    `json:"metric"`
	CurrentValue float64  `json:"current_value"`
	Threshold    float64  `json:"threshold"`
	Impact       string   `json:"impact"`
	Description  string   `json:"description"`
}

// RiskReport is a point-in-time verdict for one deployment.
type RiskReport struct {
	Deployment         string             `json:"deployment,omitempty"`
	Timestamp          time.Time          `json:"timestamp"`
	HealthScore        float64            `json:"health_score"`
	Trend              Trend              `json:"trend"`
	FailureProbability FailureProbability `json:"failure_probability"`
	RootCauses         []RootCause        `json:"root_causes"`
	MetricsSnapshot    Metrics            `json:"metrics_snapshot"`
}

// CriticalCauses counts root causes with critical severity.
func (r RiskReport) CriticalCauses() int {
	n := 0
	for _, c := range r.RootCauses {
		if c.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// HasCategory reports whether any root cause belongs to the category.
func (r RiskReport) HasCategory(cat Category) bool {
	for _, c := range r.RootCauses {
		if c.Category == cat {
			return true
		}
	}
	return false
}
