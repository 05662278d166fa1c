package alerts

import "github.com/miradorstack/mirador-forecast/internal/models"

// MaxItems caps every recommendation and action list.
const MaxItems = 5

const genericRecommendation = "Investigate and resolve issue"

var causeRecommendations = map[string][]string{
	"Accuracy Degradation": {
		"Retrain model immediately",
		"Check for data distribution changes",
		"Review feature importance shifts",
		"Enable A/B testing with previous model version",
	},
	"High Latency": {
		"Scale compute resources",
		"Enable request batching",
		"Optimize model inference",
		"Implement response caching",
	},
	"Elevated Error Rate": {
		"Review recent deployments",
		"Check dependency health",
		"Increase retry policies",
		"Enable circuit breakers",
	},
	"High CPU Utilization": {
		"Scale out worker instances",
		"Optimize compute-intensive operations",
		"Enable auto-scaling",
		"Review CPU profiling data",
	},
	"High Memory Utilization": {
		"Check for memory leaks",
		"Optimize data structures",
		"Increase memory limits",
		"Enable memory profiling",
	},
	"Data Distribution Drift": {
		"Retrain model on recent data",
		"Update feature normalization",
		"Review data sources",
		"Implement drift detection alerts",
	},
	"Cost Overrun": {
		"Review resource utilization",
		"Optimize instance types",
		"Enable cost anomaly detection",
		"Implement resource quotas",
	},
}

var categoryRecommendations = map[models.Category][]string{
	models.CategoryModelPerformance: {
		"Retrain model with recent data",
		"Enable shadow deployment for new model",
		"Increase model validation frequency",
	},
	models.CategoryPerformance: {
		"Scale up infrastructure",
		"Enable caching layer",
		"Optimize query performance",
	},
	models.CategoryDataQuality: {
		"Review data pipeline for anomalies",
		"Implement stricter input validation",
		"Update feature transformations",
	},
	models.CategoryInfrastructure: {
		"Horizontal scaling needed",
		"Check for resource leaks",
		"Review auto-scaling policies",
	},
}

var (
	criticalHealthRecommendations = []string{"Immediate investigation required", "Consider rollback to last stable version"}
	warningHealthRecommendations  = []string{"Monitor closely", "Review recent changes"}
)

// RecommendationsForIssue returns the canned list for a root-cause issue, falling back
// to a generic action for unknown issues.
func RecommendationsForIssue(issue string) []string {
	if recs, ok := causeRecommendations[issue]; ok {
		return Merge(recs)
	}
	return []string{genericRecommendation}
}

// failureRecommendations collects category lists across the report's root causes.
func failureRecommendations(report models.RiskReport) []string {
	var recs []string
	for _, cause := range report.RootCauses {
		recs = append(recs, categoryRecommendations[cause.Category]...)
	}
	return Merge(recs)
}

// Merge concatenates lists, drops empty and duplicate entries keeping the first
// occurrence, and truncates to MaxItems.
func Merge(lists ...[]string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, item := range list {
			if item == "" {
				continue
			}
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
			if len(out) == MaxItems {
				return out
			}
		}
	}
	return out
}
