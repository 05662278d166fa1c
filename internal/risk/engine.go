package risk

import (
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// TrendWindow is the number of recent health scores compared to classify the trend.
const TrendWindow = 24

// NeutralHealthScore is returned when no metric is available.
const NeutralHealthScore = 50.0

// Input is everything a single evaluation depends on.
type Input struct {
	Deployment string
	Timestamp  time.Time
	Metrics    models.Metrics

	// Probability is the ensemble failure probability in [0,1].
	Probability float64

	// HealthHistory holds recent health scores, oldest first.
	HealthHistory []float64

	// Trend overrides the trend derived from HealthHistory when set.
	Trend models.Trend
}

// Engine scores risk against a threshold table. It has no mutable state.
type Engine struct {
	thresholds Thresholds
}

// New builds an engine. Overrides replace the warning and critical limits of known
// metrics; the breach direction always comes from DefaultThresholds.
func New(overrides Thresholds) *Engine {
	t := DefaultThresholds()
	for f, th := range overrides {
		def, ok := t[f]
		if !ok {
			continue
		}
		def.Warning, def.Critical = th.Warning, th.Critical
		t[f] = def
	}
	return &Engine{thresholds: t}
}

// Thresholds returns a copy of the active threshold table.
func (e *Engine) Thresholds() Thresholds {
	out := make(Thresholds, len(e.thresholds))
	for f, t := range e.thresholds {
		out[f] = t
	}
	return out
}

// Evaluate builds a RiskReport.
func (e *Engine) Evaluate(in Input) models.RiskReport {
	trend := in.Trend
	if trend == "" {
		trend = ClassifyTrend(in.HealthHistory)
	}
	snapshot := make(models.Metrics, len(in.Metrics))
	for f, v := range in.Metrics {
		snapshot[f] = v
	}
	return models.RiskReport{
		Deployment:         in.Deployment,
		Timestamp:          in.Timestamp,
		HealthScore:        HealthScore(in.Metrics),
		Trend:              trend,
		FailureProbability: e.FailureProbability(in.Probability, in.Metrics, trend),
		RootCauses:         e.RootCauses(in.Metrics),
		MetricsSnapshot:    snapshot,
	}
}

// HealthScore is the weighted mean of the available sub-scores, renormalized over
// the weights present, rounded to two decimals.
func HealthScore(m models.Metrics) float64 {
	var sum, weights float64
	add := func(score, weight float64) {
		sum += score * weight
		weights += weight
	}
	if v, ok := m.Get(models.FieldAccuracy); ok {
		add(v*100, 0.25)
	}
	if v, ok := m.Get(models.FieldLatencyMs); ok {
		add(math.Max(0, 100-(v-50)/2), 0.20)
	}
	if v, ok := m.Get(models.FieldErrorRate); ok {
		add(math.Max(0, 100-v*1000), 0.20)
	}
	cpu, hasCPU := m.Get(models.FieldCPUUtilization)
	mem, hasMem := m.Get(models.FieldMemoryUtilization)
	if hasCPU && hasMem {
		add(math.Max(0, 100-(cpu+mem)/2), 0.15)
	}
	if v, ok := m.Get(models.FieldDataDriftScore); ok {
		add(math.Max(0, 100-v*100), 0.10)
	}
	if v, ok := m.Get(models.FieldPipelineSuccessRate); ok {
		add(v*100, 0.10)
	}
	if weights == 0 {
		return NeutralHealthScore
	}
	return round2(clamp(sum/weights, 0, 100))
}

// ClassifyTrend compares the oldest and newest of the last TrendWindow scores.
func ClassifyTrend(history []float64) models.Trend {
	if len(history) < TrendWindow {
		return models.TrendStable
	}
	recent := history[len(history)-TrendWindow:]
	first, last := recent[0], recent[len(recent)-1]
	switch {
	case last > first+10:
		return models.TrendImproving
	case last < first-10 && last > 50:
		return models.TrendDegrading
	case last < first-10:
		return models.TrendCritical
	default:
		return models.TrendStable
	}
}

// FailureProbability computes clamp(base*trend + penalties, 0, 1) and its horizon
// breakdown, all as percentages.
func (e *Engine) FailureProbability(base float64, m models.Metrics, trend models.Trend) models.FailureProbability {
	mult, ok := trendMultipliers[trend]
	if !ok {
		mult = 1
	}
	p := base * mult
	for _, pen := range penalties {
		v, ok := m.Get(pen.metric)
		if ok && e.thresholds[pen.metric].breaches(v, e.thresholds[pen.metric].Critical) {
			p += pen.amount
		}
	}
	p = clamp(p, 0, 1)
	return models.FailureProbability{
		Overall:    round2(p * 100),
		Within24h:  round2(p * 0.4 * 100),
		Within48h:  round2(p * 0.7 * 100),
		Within72h:  round2(p * 100),
		Confidence: Confidence(m),
	}
}

// Confidence blends metric completeness with data quality (1 - drift).
func Confidence(m models.Metrics) float64 {
	present := 0
	for _, f := range confidenceFields {
		if m.Has(f) {
			present++
		}
	}
	completeness := float64(present) / float64(len(confidenceFields))
	quality := 1.0
	if drift, ok := m.Get(models.FieldDataDriftScore); ok {
		quality = 1 - math.Min(drift, 1)
	}
	return round2(clamp((completeness*0.7+quality*0.3)*100, 0, 100))
}

// RootCauses lists every warning breach, critical entries first. Entries of equal
// severity keep the fixed rule order: accuracy, latency, error rate, CPU, memory,
// drift, cost.
func (e *Engine) RootCauses(m models.Metrics) []models.RootCause {
	causes := []models.RootCause{}
	for _, rule := range causeRules {
		v, ok := m.Get(rule.metric)
		if !ok {
			continue
		}
		th := e.thresholds[rule.metric]
		if !th.breaches(v, th.Warning) {
			continue
		}
		severity, limit := models.SeverityWarning, th.Warning
		if th.breaches(v, th.Critical) {
			severity, limit = models.SeverityCritical, th.Critical
		}
		causes = append(causes, models.RootCause{
			Category:     rule.category,
			Issue:        rule.issue,
			Severity:     severity,
			Metric:       rule.metric,
			CurrentValue: v,
			Threshold:    limit,
			Impact:       rule.impact,
			Description:  rule.description,
		})
	}
	sort.SliceStable(causes, func(i, j int) bool {
		return causes[i].Severity == models.SeverityCritical && causes[j].Severity != models.SeverityCritical
	})
	return causes
}

// HealthHistory returns health scores of the last n snapshots of series, oldest first.
func HealthHistory(series models.MetricSeries, n int) []float64 {
	tail := series.Tail(n)
	out := make([]float64, len(tail))
	for i, s := range tail {
		out[i] = HealthScore(s.Metrics())
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
