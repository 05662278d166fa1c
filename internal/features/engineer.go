package features

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Config controls which windows and horizons the engineer derives.
type Config struct {
	RollingWindows   []int   `yaml:"rollingWindows"`
	TrendHorizons    []int   `yaml:"trendHorizons"`
	AnomalyWindow    int     `yaml:"anomalyWindow"`
	AnomalyThreshold float64 `yaml:"anomalyThreshold"`

	// Backfill fills boundary NaNs from later rows before zero-filling. Disable it
	// for strictly causal tables.
	Backfill bool `yaml:"backfill"`
}

// DefaultConfig mirrors the production feature layout.
func DefaultConfig() Config {
	return Config{
		RollingWindows:   []int{6, 12, 24},
		TrendHorizons:    []int{12, 24, 48},
		AnomalyWindow:    168,
		AnomalyThreshold: 3,
		Backfill:         true,
	}
}

const zscoreEpsilon = 1e-6

var (
	rollingMetrics = []models.Field{
		models.FieldAccuracy,
		models.FieldLatencyMs,
		models.FieldErrorRate,
		models.FieldCPUUtilization,
		models.FieldMemoryUtilization,
		models.FieldCostPerHour,
		models.FieldDataDriftScore,
	}
	trendMetrics = []models.Field{
		models.FieldAccuracy,
		models.FieldLatencyMs,
		models.FieldErrorRate,
		models.FieldCPUUtilization,
		models.FieldMemoryUtilization,
	}
)

// Engineer turns a MetricSeries into a Table. It holds configuration only and is
// safe for concurrent use.
type Engineer struct {
	cfg    Config
	logger *slog.Logger
}

// NewEngineer builds an engineer, substituting defaults for empty settings.
func NewEngineer(cfg Config, logger *slog.Logger) *Engineer {
	def := DefaultConfig()
	if len(cfg.RollingWindows) == 0 {
		cfg.RollingWindows = def.RollingWindows
	}
	if len(cfg.TrendHorizons) == 0 {
		cfg.TrendHorizons = def.TrendHorizons
	}
	if cfg.AnomalyWindow <= 0 {
		cfg.AnomalyWindow = def.AnomalyWindow
	}
	if cfg.AnomalyThreshold <= 0 {
		cfg.AnomalyThreshold = def.AnomalyThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engineer{cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (e *Engineer) Config() Config {
	return e.cfg
}

// Transform validates series and derives one feature row per snapshot. Every value
// in the returned table is finite.
func (e *Engineer) Transform(series models.MetricSeries) (*Table, error) {
	if err := Validate(series); err != nil {
		return nil, fmt.Errorf("validate series: %w", err)
	}

	n := len(series)
	b := &builder{n: n}
	timestamps := make([]time.Time, n)
	for i, s := range series {
		timestamps[i] = s.Timestamp
	}

	raw := make(map[models.Field][]float64, len(models.SnapshotFields))
	for _, f := range models.SnapshotFields {
		raw[f] = series.Column(f)
		b.add(string(f), raw[f])
	}

	addCalendar(b, timestamps)

	for _, w := range e.cfg.RollingWindows {
		for _, f := range rollingMetrics {
			mean, std, lo, hi := rolling(raw[f], w)
			prefix := fmt.Sprintf("%s_rolling_", f)
			b.add(fmt.Sprintf("%smean_%dh", prefix, w), mean)
			b.add(fmt.Sprintf("%sstd_%dh", prefix, w), std)
			b.add(fmt.Sprintf("%smin_%dh", prefix, w), lo)
			b.add(fmt.Sprintf("%smax_%dh", prefix, w), hi)
		}
	}

	for _, h := range e.cfg.TrendHorizons {
		for _, f := range trendMetrics {
			diff, pct := change(raw[f], h)
			b.add(fmt.Sprintf("%s_change_%dh", f, h), diff)
			b.add(fmt.Sprintf("%s_pct_change_%dh", f, h), pct)
		}
	}

	addInteractions(b, raw)

	for _, f := range trendMetrics {
		z, flag := anomaly(raw[f], e.cfg.AnomalyWindow, e.cfg.AnomalyThreshold)
		b.add(fmt.Sprintf("%s_zscore", f), z)
		b.add(fmt.Sprintf("%s_is_anomaly", f), flag)
	}

	for _, col := range b.columns {
		fillMissing(col, e.cfg.Backfill)
	}

	table := b.build(timestamps)
	e.logger.Debug("feature table built", slog.Int("rows", table.Len()), slog.Int("columns", table.Width()))
	return table, nil
}

func addInteractions(b *builder, raw map[models.Field][]float64) {
	n := b.n
	throughput := make([]float64, n)
	cpuPerReq := make([]float64, n)
	memPerReq := make([]float64, n)
	costPerReq := make([]float64, n)
	accDrift := make([]float64, n)
	stress := make([]float64, n)
	errCount := make([]float64, n)
	for i := 0; i < n; i++ {
		vol := raw[models.FieldRequestVolume][i]
		cpu := raw[models.FieldCPUUtilization][i]
		mem := raw[models.FieldMemoryUtilization][i]
		throughput[i] = vol / (raw[models.FieldLatencyMs][i] + 1)
		cpuPerReq[i] = cpu / (vol + 1)
		memPerReq[i] = mem / (vol + 1)
		costPerReq[i] = raw[models.FieldCostPerHour][i] / (vol + 1)
		accDrift[i] = raw[models.FieldAccuracy][i] * (1 - raw[models.FieldDataDriftScore][i])
		stress[i] = (cpu + mem) / 2
		errCount[i] = raw[models.FieldErrorRate][i] * vol
	}
	b.add("throughput", throughput)
	b.add("cpu_per_request", cpuPerReq)
	b.add("memory_per_request", memPerReq)
	b.add("cost_per_request", costPerReq)
	b.add("accuracy_drift_interaction", accDrift)
	b.add("system_stress", stress)
	b.add("error_count", errCount)
}

// fillMissing backward-fills NaN runs (when enabled) and zero-fills the rest.
func fillMissing(col []float64, backfill bool) {
	next := math.NaN()
	for i := len(col) - 1; i >= 0; i-- {
		if math.IsNaN(col[i]) {
			if backfill {
				col[i] = next
			}
			continue
		}
		next = col[i]
	}
	for i, v := range col {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			col[i] = 0
		}
	}
}
