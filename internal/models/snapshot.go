package models

import "time"

// Field names the numeric metrics carried by a MetricSnapshot.
type Field string

const (
	FieldAccuracy            Field = "accuracy"
	FieldLatencyMs           Field = "latency_ms"
	FieldRequestVolume       Field = "request_volume"
	FieldErrorRate           Field = "error_rate"
	FieldCPUUtilization      Field = "cpu_utilization"
	FieldMemoryUtilization   Field = "memory_utilization"
	FieldCostPerHour         Field = "cost_per_hour"
	FieldDataDriftScore      Field = "data_drift_score"
	FieldPipelineSuccessRate Field = "pipeline_success_rate"
)

// SnapshotFields lists every metric field in schema order.
var SnapshotFields = []Field{
	FieldAccuracy,
	FieldLatencyMs,
	FieldRequestVolume,
	FieldErrorRate,
	FieldCPUUtilization,
	FieldMemoryUtilization,
	FieldCostPerHour,
	FieldDataDriftScore,
	FieldPipelineSuccessRate,
}

// MetricSnapshot is one hourly observation of a deployed model service.
type MetricSnapshot struct {
	Timestamp           time.Time `json:"timestamp"`
	Accuracy            float64   `json:"accuracy" validate:"gte=0,lte=1"`
	LatencyMs           float64   `json:"latency_ms" validate:"gte=0"`
	RequestVolume       int64     `json:"request_volume" validate:"gte=0"`
	ErrorRate           float64   `json:"error_rate" validate:"gte=0,lte=1"`
	CPUUtilization      float64   `json:"cpu_utilization" validate:"gte=0,lte=100"`
	MemoryUtilization   float64   `json:"memory_utilization" validate:"gte=0,lte=100"`
	CostPerHour         float64   `json:"cost_per_hour" validate:"gte=0"`
	DataDriftScore      float64   `json:"data_drift_score" validate:"gte=0,lte=1"`
	PipelineSuccessRate float64   `json:"pipeline_success_rate" validate:"gte=0,lte=1"`
}

// Value returns the numeric value of the named field.
func (s MetricSnapshot) Value(f Field) float64 {
	switch f {
	case FieldAccuracy:
		return s.Accuracy
	case FieldLatencyMs:
		return s.LatencyMs
	case FieldRequestVolume:
		return float64(s.RequestVolume)
	case FieldErrorRate:
		return s.ErrorRate
	case FieldCPUUtilization:
		return s.CPUUtilization
	case FieldMemoryUtilization:
		return s.MemoryUtilization
	case FieldCostPerHour:
		return s.CostPerHour
	case FieldDataDriftScore:
		return s.DataDriftScore
	case FieldPipelineSuccessRate:
		return s.PipelineSuccessRate
	default:
		return 0
	}
}

// Metrics converts the snapshot into a fully populated Metrics map.
func (s MetricSnapshot) Metrics() Metrics {
	m := make(Metrics, len(SnapshotFields))
	for _, f := range SnapshotFields {
		m[f] = s.Value(f)
	}
	return m
}

// MetricSeries is a timestamp-ordered sequence of snapshots.
type MetricSeries []MetricSnapshot

// Column extracts one field across the series.
func (s MetricSeries) Column(f Field) []float64 {
	out := make([]float64, len(s))
	for i, snap := range s {
		out[i] = snap.Value(f)
	}
	return out
}

// Tail returns the last n snapshots (or the whole series when shorter).
func (s MetricSeries) Tail(n int) MetricSeries {
	if n <= 0 {
		return nil
	}
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

// Clone returns an independent copy of the series.
func (s MetricSeries) Clone() MetricSeries {
	return append(MetricSeries(nil), s...)
}

// Metrics is a possibly partial set of metric values. Absent keys are missing metrics.
type Metrics map[Field]float64

// Get returns the value and whether the metric is present.
func (m Metrics) Get(f Field) (float64, bool) {
	v, ok := m[f]
	return v, ok
}

// Has reports whether the metric is present.
func (m Metrics) Has(f Field) bool {
	_, ok := m[f]
	return ok
}
