package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// alertNamespace seeds deterministic alert ids.
var alertNamespace = uuid.MustParse("5b0f9f3e-54a4-4a43-9a1e-6f1c1d3b7a21")

// Generate derives alerts from a report. It is a pure function: the same report always
// yields the same alerts, ids included. It does not deduplicate against earlier reports;
// Book applies the cooldown policy.
func Generate(report models.RiskReport) []models.Alert {
	alerts := []models.Alert{}
	prob := report.FailureProbability

	switch {
	case prob.Overall > 70:
		alerts = append(alerts, newAlert(report, models.AlertTypeFailurePrediction, models.SeverityCritical,
			"Critical: High Failure Probability Detected",
			fmt.Sprintf("System has %s%% probability of failure in next 72 hours", formatNumber(prob.Overall)),
			probabilityMetrics(prob), failureRecommendations(report)))
	case prob.Overall > 40:
		alerts = append(alerts, newAlert(report, models.AlertTypeFailurePrediction, models.SeverityWarning,
			"Warning: Elevated Failure Risk",
			fmt.Sprintf("System has %s%% probability of failure in next 72 hours", formatNumber(prob.Overall)),
			probabilityMetrics(prob), failureRecommendations(report)))
	}

	health := map[string]float64{"health_score": report.HealthScore}
	switch {
	case report.HealthScore < 50:
		alerts = append(alerts, newAlert(report, models.AlertTypeHealthDegradation, models.SeverityCritical,
			"Critical: System Health Severely Degraded",
			fmt.Sprintf("Overall health score: %s/100", formatNumber(report.HealthScore)),
			health, Merge(criticalHealthRecommendations)))
	case report.HealthScore < 70:
		alerts = append(alerts, newAlert(report, models.AlertTypeHealthDegradation, models.SeverityWarning,
			"Warning: System Health Declining",
			fmt.Sprintf("Overall health score: %s/100", formatNumber(report.HealthScore)),
			health, Merge(warningHealthRecommendations)))
	}

	for _, cause := range report.RootCauses {
		if cause.Severity != models.SeverityCritical {
			continue
		}
		alerts = append(alerts, newAlert(report, CategoryAlertType(cause.Category), models.SeverityCritical,
			"Critical: "+cause.Issue,
			cause.Description,
			map[string]float64{"current_value": cause.CurrentValue, "threshold": cause.Threshold},
			RecommendationsForIssue(cause.Issue)))
	}
	return alerts
}

// CategoryAlertType converts a root-cause category to its alert type, e.g.
// "Model Performance" becomes MODEL_PERFORMANCE.
func CategoryAlertType(c models.Category) string {
	return strings.ReplaceAll(strings.ToUpper(string(c)), " ", "_")
}

func newAlert(report models.RiskReport, typ string, sev models.Severity, title, desc string, metrics map[string]float64, recs []string) models.Alert {
	a := models.Alert{
		Deployment:      report.Deployment,
		Timestamp:       report.Timestamp,
		Type:            typ,
		Severity:        sev,
		Title:           title,
		Description:     desc,
		Metrics:         metrics,
		Recommendations: recs,
		Status:          models.AlertActive,
	}
	a.ID = alertID(report.Timestamp, a.Condition())
	return a
}

func alertID(ts time.Time, condition string) string {
	return uuid.NewSHA1(alertNamespace, []byte(ts.UTC().Format(time.RFC3339Nano)+"|"+condition)).String()
}

func probabilityMetrics(p models.FailureProbability) map[string]float64 {
	return map[string]float64{
		"failure_probability_overall": p.Overall,
		"failure_probability_24h":     p.Within24h,
		"failure_probability_48h":     p.Within48h,
		"failure_probability_72h":     p.Within72h,
		"confidence":                  p.Confidence,
	}
}

func formatNumber(v float64) string {
	return fmt.Sprintf("%g", v)
}
