package alerts

import "github.com/miradorstack/mirador-forecast/internal/models"

type categoryActions struct {
	category  models.Category
	immediate string
	shortTerm []string
	longTerm  []string
}

// planActions is checked in order; the order fixes which actions survive truncation.
var planActions = []categoryActions{
	{
		category:  models.CategoryModelPerformance,
		immediate: "Switch to backup model if available",
		shortTerm: []string{
			"Initiate model retraining pipeline",
			"Analyze model performance degradation",
			"Review recent data quality issues",
		},
		longTerm: []string{
			"Implement continuous model monitoring",
			"Set up automated retraining pipeline",
			"Establish model performance SLAs",
		},
	},
	{
		category:  models.CategoryInfrastructure,
		immediate: "Scale up critical resources",
		shortTerm: []string{
			"Review resource allocation",
			"Optimize infrastructure configuration",
			"Check for resource leaks",
		},
		longTerm: []string{
			"Implement auto-scaling policies",
			"Review capacity planning",
			"Optimize resource efficiency",
		},
	},
	{
		category:  models.CategoryDataQuality,
		immediate: "Enable data quality checks",
		shortTerm: []string{
			"Investigate data source changes",
			"Review ETL pipeline health",
			"Validate data transformations",
		},
		longTerm: []string{
			"Implement automated data validation",
			"Set up data drift monitoring",
			"Establish data quality SLAs",
		},
	},
}

var incidentResponseActions = []string{
	"Activate incident response team",
	"Prepare rollback procedures",
	"Enable enhanced monitoring",
	"Notify stakeholders of elevated risk",
}

// Plan derives a mitigation plan from a report.
func Plan(report models.RiskReport) models.MitigationPlan {
	var immediate, shortTerm, longTerm []string
	if report.FailureProbability.Within24h > 50 {
		immediate = append(immediate, incidentResponseActions...)
	}
	for _, set := range planActions {
		if !report.HasCategory(set.category) {
			continue
		}
		immediate = append(immediate, set.immediate)
		shortTerm = append(shortTerm, set.shortTerm...)
		longTerm = append(longTerm, set.longTerm...)
	}
	return models.MitigationPlan{
		RiskLevel:        RiskLevel(report),
		Priority:         Priority(report),
		EstimatedMTTR:    EstimateMTTR(report),
		ImmediateActions: Merge(immediate),
		ShortTermActions: Merge(shortTerm),
		LongTermActions:  Merge(longTerm),
	}
}

// RiskLevel classifies the report using the alert thresholds.
func RiskLevel(report models.RiskReport) models.RiskLevel {
	prob, health := report.FailureProbability.Overall, report.HealthScore
	switch {
	case prob > 70 || health < 50:
		return models.RiskCritical
	case prob > 40 || health < 70:
		return models.RiskHigh
	case prob > 20 || health < 85:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Priority maps the report to an incident priority. P0 needs both a high probability
// and a low health score.
func Priority(report models.RiskReport) string {
	prob, health := report.FailureProbability.Overall, report.HealthScore
	switch {
	case prob > 70 && health < 50:
		return models.PriorityP0
	case prob > 50 || health < 60:
		return models.PriorityP1
	case prob > 30 || health < 75:
		return models.PriorityP2
	default:
		return models.PriorityP3
	}
}

// EstimateMTTR buckets recovery time by the number of critical root causes.
func EstimateMTTR(report models.RiskReport) string {
	switch n := report.CriticalCauses(); {
	case n >= 3:
		return "4-8 hours"
	case n >= 1:
		return "2-4 hours"
	default:
		return "1-2 hours"
	}
}
