package risk

import "github.com/miradorstack/mirador-forecast/internal/models"

// Threshold is a warning/critical pair. For LowerIsWorse metrics a breach is a value
// below the threshold; otherwise above. The direction is fixed per metric by
// DefaultThresholds and is not configurable.
type Threshold struct {
	Warning      float64 `yaml:"warning"`
	Critical     float64 `yaml:"critical"`
	LowerIsWorse bool    `yaml:"-"`
}

func (t Threshold) breaches(v, limit float64) bool {
	if t.LowerIsWorse {
		return v < limit
	}
	return v > limit
}

// Thresholds maps monitored metrics to their limits.
type Thresholds map[models.Field]Threshold

// DefaultThresholds returns the production limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		models.FieldAccuracy:          {Warning: 0.90, Critical: 0.85, LowerIsWorse: true},
		models.FieldLatencyMs:         {Warning: 100, Critical: 200},
		models.FieldErrorRate:         {Warning: 0.02, Critical: 0.05},
		models.FieldCPUUtilization:    {Warning: 70, Critical: 85},
		models.FieldMemoryUtilization: {Warning: 70, Critical: 85},
		models.FieldDataDriftScore:    {Warning: 0.3, Critical: 0.5},
		models.FieldCostPerHour:       {Warning: 30, Critical: 50},
	}
}

// causeRule describes the root cause emitted for a breached metric. causeRules is
// evaluated in order and that order breaks ties between equal severities.
type causeRule struct {
	metric      models.Field
	category    models.Category
	issue       string
	impact      string
	description string
}

var causeRules = []causeRule{
	{models.FieldAccuracy, models.CategoryModelPerformance, "Accuracy Degradation", "High", "Model accuracy has fallen below acceptable thresholds"},
	{models.FieldLatencyMs, models.CategoryPerformance, "High Latency", "High", "Response time exceeds acceptable limits"},
	{models.FieldErrorRate, models.CategoryReliability, "Elevated Error Rate", "High", "System error rate is abnormally high"},
	{models.FieldCPUUtilization, models.CategoryInfrastructure, "High CPU Utilization", "Medium", "CPU usage approaching capacity limits"},
	{models.FieldMemoryUtilization, models.CategoryInfrastructure, "High Memory Utilization", "Medium", "Memory usage may lead to OOM errors"},
	{models.FieldDataDriftScore, models.CategoryDataQuality, "Data Distribution Drift", "High", "Input data distribution has shifted significantly"},
	{models.FieldCostPerHour, models.CategoryCost, "Cost Overrun", "Medium", "Infrastructure costs exceeding budget"},
}

// penalty is an additive failure-probability adjustment applied on a critical breach.
type penalty struct {
	metric models.Field
	amount float64
}

var penalties = []penalty{
	{models.FieldAccuracy, 0.15},
	{models.FieldLatencyMs, 0.10},
	{models.FieldErrorRate, 0.15},
	{models.FieldDataDriftScore, 0.10},
}

var trendMultipliers = map[models.Trend]float64{
	models.TrendImproving: 0.8,
	models.TrendStable:    1.0,
	models.TrendDegrading: 1.3,
	models.TrendCritical:  1.5,
}

// confidenceFields are the metrics expected for a complete evaluation.
var confidenceFields = []models.Field{
	models.FieldAccuracy,
	models.FieldLatencyMs,
	models.FieldErrorRate,
	models.FieldCPUUtilization,
	models.FieldMemoryUtilization,
	models.FieldDataDriftScore,
}
