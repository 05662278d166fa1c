package models

import "time"

// AlertStatus tracks the lifecycle of an alert.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert types emitted by the alert engine. Root-cause alerts use the upper-snake
// category name (for example MODEL_PERFORMANCE).
const (
	AlertTypeFailurePrediction = "FAILURE_PREDICTION"
	AlertTypeHealthDegradation = "HEALTH_DEGRADATION"
)

// Alert is a discrete, severity-tagged notification derived from a RiskReport.
type Alert struct {
	ID              string             `json:"id"`
	Deployment      string             `json:"deployment,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
	Type            string             `json:"type"`
	Severity        Severity           `json:"severity"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Metrics         map[string]float64 `json:"metrics"`
	Recommendations []string           `json:"recommendations"`
	Status          AlertStatus        `json:"status"`
}

// Condition identifies the condition an alert reports, independent of when it fired.
func (a Alert) Condition() string {
	return a.Deployment + "|" + a.Type + "|" + string(a.Severity) + "|" + a.Title
}

// RiskLevel classifies overall risk for mitigation planning.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Priority values for incident handling.
const (
	PriorityP0 = "P0 - Critical"
	PriorityP1 = "P1 - High"
	PriorityP2 = "P2 - Medium"
	PriorityP3 = "P3 - Low"
)

// MitigationPlan is a time-boxed action plan derived from a RiskReport.
type MitigationPlan struct {
	RiskLevel        RiskLevel `json:"risk_level"`
	Priority         string    `json:"priority"`
	EstimatedMTTR    string    `json:"estimated_mttr"`
	ImmediateActions []string  `json:"immediate_actions"`
	ShortTermActions []string  `json:"short_term_actions"`
	LongTermActions  []string  `json:"long_term_actions"`
}

// AlertSummary aggregates counts over the active and historical alert views.
type AlertSummary struct {
	TotalActive     int `json:"total_active"`
	Critical        int `json:"critical"`
	Warning         int `json:"warning"`
	Info            int `json:"info"`
	TotalHistorical int `json:"total_historical"`
	Suppressed      int `json:"suppressed"`
}
