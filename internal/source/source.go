package source

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/simulator"
)

// ErrNoSamples is returned when a source has nothing for the requested window.
var ErrNoSamples = errors.New("metric source returned no samples")

// Source supplies an hourly MetricSeries for one deployment, ordered by timestamp.
type Source interface {
	FetchSeries(ctx context.Context, deployment string, start, end time.Time) (models.MetricSeries, error)
}

// SimulatorConfig tunes the simulator-backed source.
type SimulatorConfig struct {
	Seed int64

	// Degraded maps deployment names to the number of trailing hours that carry an
	// injected failure scenario.
	Degraded map[string]int
}

// SimulatorSource serves synthetic telemetry. Every deployment gets its own stable
// stream derived from the seed and the deployment name.
type SimulatorSource struct {
	cfg SimulatorConfig
}

// NewSimulatorSource constructs a SimulatorSource.
func NewSimulatorSource(cfg SimulatorConfig) *SimulatorSource {
	return &SimulatorSource{cfg: cfg}
}

// FetchSeries generates the hourly window ending at end.
func (s *SimulatorSource) FetchSeries(ctx context.Context, deployment string, start, end time.Time) (models.MetricSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hours := int(end.Sub(start) / time.Hour)
	if hours <= 0 {
		return nil, ErrNoSamples
	}
	gen := simulator.NewGenerator(simulator.Config{Seed: s.seedFor(deployment), Now: end})
	series := gen.Generate(hours)
	if d := s.cfg.Degraded[deployment]; d > 0 {
		series = simulator.InjectFailureScenario(series, max(0, len(series)-d), d)
	}
	return series, nil
}

func (s *SimulatorSource) seedFor(deployment string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(deployment))
	seed := s.cfg.Seed ^ int64(h.Sum64()&0x7fffffffffffffff)
	if seed == 0 {
		seed = 1
	}
	return seed
}
