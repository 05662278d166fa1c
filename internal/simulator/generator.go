package simulator

import (
	"math"
	"math/rand"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

const (
	accuracyDropEvery   = 500
	accuracyDropHours   = 24
	accuracyDropEffect  = -0.1
	latencySpikeEvery   = 300
	latencySpikeHours   = 6
	latencySpikeEffect  = 200.0
	hoursPerDay         = 24.0
	hoursPerWeek        = 24.0 * 7
	defaultHistoryHours = 90 * 24
)

// Config controls synthetic telemetry generation.
type Config struct {
	// Seed makes runs reproducible. Zero picks a time-based seed.
	Seed int64
	// Now anchors the end of the generated window. Zero means time.Now().
	Now time.Time
}

// Generator produces synthetic hourly telemetry for a deployed model service.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	now := time.Now
	if !cfg.Now.IsZero() {
		anchor := cfg.Now
		now = func() time.Time { return anchor }
	}
	return &Generator{rng: rand.New(rand.NewSource(seed)), now: now}
}

// Generate returns one snapshot per hour covering [now-hours, now).
func (g *Generator) Generate(hours int) models.MetricSeries {
	if hours <= 0 {
		hours = defaultHistoryHours
	}
	start := g.now().UTC().Truncate(time.Hour).Add(-time.Duration(hours) * time.Hour)

	accuracyDrops := g.eventMask(hours, max(1, hours/accuracyDropEvery), accuracyDropHours)
	latencySpikes := g.eventMask(hours, max(1, hours/latencySpikeEvery), latencySpikeHours)

	series := make(models.MetricSeries, hours)
	for i := 0; i < hours; i++ {
		t := float64(i)
		daily := math.Sin(2*math.Pi*t/hoursPerDay) + 1
		weekly := math.Sin(2 * math.Pi * t / hoursPerWeek)

		accuracy := 0.95 - 0.0001*t + 0.02*weekly + g.rng.NormFloat64()*0.01
		if accuracyDrops[i] {
			accuracy += accuracyDropEffect
		}
		accuracy = clamp(accuracy, 0.5, 1.0)

		latency := 50 + 20*daily + g.rng.ExpFloat64()*10
		if latencySpikes[i] {
			latency += latencySpikeEffect
		}
		latency = clamp(latency, 10, 500)

		volume := clamp(10000+5000*daily+g.rng.NormFloat64()*1000, 1000, 30000)

		errorRate := 0.01 + 0.005*(1-accuracy/0.95) + g.rng.ExpFloat64()*0.005
		errorRate = clamp(errorRate, 0, 0.5)

		cpu := clamp(45+30*daily+g.rng.NormFloat64()*5, 10, 100)
		memory := clamp(60+0.01*t+g.rng.NormFloat64()*3, 20, 95)

		cost := 10*(cpu/50)*(volume/10000) + g.rng.NormFloat64()*2
		cost = clamp(cost, 1, 100)

		drift := clamp(0.1+0.0005*t+g.rng.NormFloat64()*0.05, 0, 1)

		pipeline := 0.98 - 0.1*(errorRate/0.05) + g.rng.NormFloat64()*0.02
		pipeline = clamp(pipeline, 0.5, 1.0)

		series[i] = models.MetricSnapshot{
			Timestamp:           start.Add(time.Duration(i) * time.Hour),
			Accuracy:            accuracy,
			LatencyMs:           latency,
			RequestVolume:       int64(volume),
			ErrorRate:           errorRate,
			CPUUtilization:      cpu,
			MemoryUtilization:   memory,
			CostPerHour:         cost,
			DataDriftScore:      drift,
			PipelineSuccessRate: pipeline,
		}
	}
	return series
}

// eventMask marks the hours covered by count randomly placed events of the given duration.
func (g *Generator) eventMask(hours, count, duration int) []bool {
	mask := make([]bool, hours)
	if count > hours {
		count = hours
	}
	for _, start := range g.rng.Perm(hours)[:count] {
		for h := start; h < start+duration && h < hours; h++ {
			mask[h] = true
		}
	}
	return mask
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
