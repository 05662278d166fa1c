package simulator

import "github.com/miradorstack/mirador-forecast/internal/models"

// InjectFailureScenario returns a copy of series with a gradual degradation applied
// over [start, start+durationHours). Progress p runs from 0 to just under 1 across
// the window; every metric worsens proportionally to p.
func InjectFailureScenario(series models.MetricSeries, start, durationHours int) models.MetricSeries {
	out := series.Clone()
	if durationHours <= 0 || start < 0 || start >= len(out) {
		return out
	}
	end := min(start+durationHours, len(out))
	for i := start; i < end; i++ {
		p := float64(i-start) / float64(durationHours)
		s := &out[i]
		s.Accuracy *= 1 - 0.3*p
		s.LatencyMs *= 1 + 2*p
		s.ErrorRate = clamp(s.ErrorRate*(1+5*p), 0, 1)
		s.CPUUtilization = min(95, s.CPUUtilization*(1+p))
		s.MemoryUtilization = min(95, s.MemoryUtilization*(1+p))
		s.CostPerHour *= 1 + 1.5*p
		s.DataDriftScore = min(0.9, s.DataDriftScore*(1+2*p))
	}
	return out
}
