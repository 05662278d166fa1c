package simulator

import "github.com/miradorstack/mirador-forecast/internal/models"

// DefaultLookaheadHours is the labelling horizon used for training data.
const DefaultLookaheadHours = 48

// Failure thresholds applied over the look-ahead window.
const (
	AccuracyDropThreshold = 0.10
	LatencyRiseThreshold  = 100.0
	ErrorRiseThreshold    = 0.05
)

// Label derives binary failure labels by looking ahead lookaheadHours samples.
//
// Label reads future samples and exists only to build training data; online
// evaluation never calls it. Snapshot i is positive when, within samples
// [i, i+lookahead), accuracy falls by at least 0.10 below its value at i, latency
// rises by at least 100ms, or error rate rises by at least 0.05. The trailing
// lookahead samples have no complete window and are labelled 0.
func Label(series models.MetricSeries, lookaheadHours int) []int {
	if lookaheadHours <= 0 {
		lookaheadHours = DefaultLookaheadHours
	}
	labels := make([]int, len(series))
	for i := 0; i+lookaheadHours <= len(series); i++ {
		current := series[i]
		minAccuracy := current.Accuracy
		maxLatency := current.LatencyMs
		maxError := current.ErrorRate
		for _, future := range series[i : i+lookaheadHours] {
			minAccuracy = min(minAccuracy, future.Accuracy)
			maxLatency = max(maxLatency, future.LatencyMs)
			maxError = max(maxError, future.ErrorRate)
		}
		if current.Accuracy-minAccuracy >= AccuracyDropThreshold ||
			maxLatency-current.LatencyMs >= LatencyRiseThreshold ||
			maxError-current.ErrorRate >= ErrorRiseThreshold {
			labels[i] = 1
		}
	}
	return labels
}

// PositiveRate returns the fraction of positive labels.
func PositiveRate(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	pos := 0
	for _, l := range labels {
		pos += l
	}
	return float64(pos) / float64(len(labels))
}
