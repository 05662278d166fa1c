package predictor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/caio/go-tdigest/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-forecast/internal/features"
)

var reportQuantiles = map[string]float64{"p50": 0.5, "p90": 0.9, "p99": 0.99}

// Predictor owns the trained model handle. Train builds a complete model off to the
// side and swaps it in; Predict reads whatever model is current and is safe to call
// concurrently.
type Predictor struct {
	cfg    Config
	caps   Capabilities
	logger *slog.Logger
	handle *Handle

	trainMu sync.Mutex
	now     func() time.Time
}

// New constructs an untrained predictor with the given capabilities.
func New(cfg Config, caps Capabilities, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Predictor{
		cfg:    cfg.withDefaults(),
		caps:   caps,
		logger: logger,
		handle: &Handle{},
		now:    time.Now,
	}
}

// Capabilities returns the injected capability descriptor.
func (p *Predictor) Capabilities() Capabilities {
	return p.caps
}

// State reports whether a model has been installed.
func (p *Predictor) State() State {
	if p.handle.Load() == nil {
		return StateUntrained
	}
	return StateTrained
}

// Model returns the current model or nil.
func (p *Predictor) Model() *Model {
	return p.handle.Load()
}

// Install replaces the current model, for example with one loaded from an artifact.
func (p *Predictor) Install(m *Model) error {
	if m == nil {
		return ErrNotTrained
	}
	old := p.handle.Swap(m)
	p.logger.Info("model installed", slog.String("version", m.Version), slog.Bool("replaced", old != nil))
	return nil
}

// Train fits both sub-models independently. A sub-model that is disabled or fails is
// recorded in the report and the other still trains. The new model is installed only
// when at least one sub-model succeeded.
func (p *Predictor) Train(ctx context.Context, table *features.Table, labels []int) (TrainingReport, error) {
	p.trainMu.Lock()
	defer p.trainMu.Unlock()

	if table.Len() == 0 {
		return TrainingReport{}, ErrInsufficientData
	}
	if table.Len() != len(labels) {
		return TrainingReport{}, fmt.Errorf("%w: %d labels for %d rows", ErrFeatureMismatch, len(labels), table.Len())
	}

	scaler, err := features.FitScaler(table)
	if err != nil {
		return TrainingReport{}, err
	}
	scaled, err := scaler.Transform(table)
	if err != nil {
		return TrainingReport{}, err
	}

	report := TrainingReport{
		Version:        uuid.NewString(),
		TrainedAt:      p.now().UTC(),
		Samples:        table.Len(),
		Positives:      countPositives(labels),
		Features:       table.Width(),
		SequenceLength: p.cfg.SequenceLength,
		Sequence:       SubModelReport{Name: SubModelSequence, Status: StatusSkipped, Reason: "sequence capability disabled"},
		Tabular:        SubModelReport{Name: SubModelTabular, Status: StatusSkipped, Reason: "tabular capability disabled"},
	}
	model := &Model{
		Version:        report.Version,
		TrainedAt:      report.TrainedAt,
		Features:       append([]string(nil), table.Columns...),
		SequenceLength: p.cfg.SequenceLength,
		Scaler:         scaler,
	}

	// Each goroutine records its own outcome and returns nil so one failure never
	// cancels the other.
	g, gctx := errgroup.WithContext(ctx)
	if p.caps.Sequence {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				report.Sequence = failed(SubModelSequence, err)
				return nil
			}
			res, err := trainSequence(scaled.Rows, labels, p.cfg)
			if err != nil {
				report.Sequence = failed(SubModelSequence, err)
				return nil
			}
			model.Sequence, report.Sequence = res.model, res.report
			return nil
		})
	}
	if p.caps.Tabular {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				report.Tabular = failed(SubModelTabular, err)
				return nil
			}
			m, sub, err := trainBoosted(scaled.Rows, labels, p.cfg)
			if err != nil {
				report.Tabular = failed(SubModelTabular, err)
				return nil
			}
			model.Tabular, report.Tabular = m, sub
			return nil
		})
	}
	_ = g.Wait()

	for _, sub := range []SubModelReport{report.Sequence, report.Tabular} {
		if sub.Status == StatusSuccess {
			continue
		}
		report.Degraded = append(report.Degraded, sub.Name)
		p.logger.Warn("sub-model unavailable, ensemble degraded",
			slog.String("submodel", sub.Name),
			slog.String("status", string(sub.Status)),
			slog.String("reason", sub.Reason))
	}
	if model.Sequence == nil && model.Tabular == nil {
		return report, ErrNoSubModel
	}

	report.FeatureImportance = model.Importance()
	if pred, err := model.Predict(table); err == nil {
		report.ScoreQuantiles = scoreQuantiles(pred)
	}

	p.handle.Swap(model)
	p.logger.Info("model trained",
		slog.String("version", model.Version),
		slog.Int("samples", report.Samples),
		slog.Int("positives", report.Positives),
		slog.String("sequence", string(report.Sequence.Status)),
		slog.String("tabular", string(report.Tabular.Status)))
	return report, nil
}

// Predict scores table with the current model.
func (p *Predictor) Predict(table *features.Table) (Prediction, error) {
	m := p.handle.Load()
	if m == nil {
		return Prediction{}, ErrNotTrained
	}
	pred, err := m.Predict(table)
	if err != nil {
		return Prediction{}, err
	}
	if len(pred.Degraded) > 0 {
		p.logger.Warn("prediction in degraded mode", slog.Any("missing", pred.Degraded), slog.String("version", pred.Version))
	}
	return pred, nil
}

func failed(name string, err error) SubModelReport {
	status := StatusFailed
	if errors.Is(err, context.Canceled) {
		status = StatusSkipped
	}
	return SubModelReport{Name: name, Status: status, Reason: err.Error()}
}

func scoreQuantiles(pred Prediction) map[string]float64 {
	td, err := tdigest.New()
	if err != nil {
		return nil
	}
	for _, r := range pred.Results {
		if err := td.Add(r.EnsembleProbability); err != nil {
			return nil
		}
	}
	out := make(map[string]float64, len(reportQuantiles))
	for name, q := range reportQuantiles {
		out[name] = td.Quantile(q)
	}
	return out
}

func sortImportance(items []FeatureImportance) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Gain > items[j].Gain })
}
