package engine

import (
	"context"
	"fmt"

	"github.com/miradorstack/mirador-forecast/internal/metrics"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/predictor"
	"github.com/miradorstack/mirador-forecast/internal/simulator"
)

// Train fetches hours of history for deployment and trains the predictor on it.
func (p *Pipeline) Train(ctx context.Context, deployment string, hours int) (predictor.TrainingReport, error) {
	series, err := p.fetch(ctx, deployment, hours)
	if err != nil {
		return predictor.TrainingReport{}, err
	}
	return p.TrainSeries(ctx, series)
}

// TrainSeries labels series with the look-ahead rule and trains the predictor. This is
// the only path that reads future samples.
func (p *Pipeline) TrainSeries(ctx context.Context, series models.MetricSeries) (predictor.TrainingReport, error) {
	if p.predictor == nil {
		return predictor.TrainingReport{}, fmt.Errorf("predictor not configured")
	}
	table, err := p.engineer.Transform(series)
	if err != nil {
		return predictor.TrainingReport{}, fmt.Errorf("engineer features: %w", err)
	}
	labels := simulator.Label(series, p.opts.LookaheadHours)

	report, err := p.predictor.Train(ctx, table, labels)
	for _, sub := range []predictor.SubModelReport{report.Sequence, report.Tabular} {
		if sub.Name != "" {
			metrics.ObserveTraining(sub.Name, string(sub.Status))
		}
	}
	if err != nil {
		return report, fmt.Errorf("train predictor: %w", err)
	}
	return report, nil
}
