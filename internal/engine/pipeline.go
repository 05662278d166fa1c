package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/alerts"
	"github.com/miradorstack/mirador-forecast/internal/features"
	"github.com/miradorstack/mirador-forecast/internal/metrics"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/patterns"
	"github.com/miradorstack/mirador-forecast/internal/predictor"
	"github.com/miradorstack/mirador-forecast/internal/risk"
	"github.com/miradorstack/mirador-forecast/internal/source"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

// DefaultHistoryHours is the window fetched for each evaluation. It covers the
// longest feature window (the 168h anomaly baseline) plus the longest trend horizon.
const DefaultHistoryHours = 168 + 48

// Options tunes the pipeline.
type Options struct {
	// HistoryHours is the window fetched from the source for one evaluation.
	HistoryHours int

	// LookaheadHours is the labelling horizon used when training.
	LookaheadHours int
}

// Evaluation is the outcome of one pipeline run for a deployment.
type Evaluation struct {
	Deployment   string                  `json:"deployment"`
	ModelVersion string                  `json:"model_version,omitempty"`
	Prediction   models.PredictionResult `json:"prediction"`
	Degraded     []string                `json:"degraded,omitempty"`
	Report       models.RiskReport       `json:"report"`
	Alerts       []models.Alert          `json:"alerts"`
	Recorded     []models.Alert          `json:"recorded"`
	Plan         models.MitigationPlan   `json:"plan"`
}

// Pipeline orchestrates source → features → predictor → risk → alerts.
type Pipeline struct {
	logger    *slog.Logger
	source    source.Source
	engineer  *features.Engineer
	predictor *predictor.Predictor
	risk      *risk.Engine
	rules     *RuleEngine
	book      *alerts.Book
	reports   *patterns.ReportLog
	opts      Options
	now       func() time.Time
}

// NewPipeline constructs a forecast pipeline. rules, book and reports are optional.
func NewPipeline(
	logger *slog.Logger,
	src source.Source,
	engineer *features.Engineer,
	pred *predictor.Predictor,
	riskEngine *risk.Engine,
	rules *RuleEngine,
	book *alerts.Book,
	reports *patterns.ReportLog,
	opts Options,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if engineer == nil {
		engineer = features.NewEngineer(features.DefaultConfig(), logger)
	}
	if riskEngine == nil {
		riskEngine = risk.New(nil)
	}
	if opts.HistoryHours <= 0 {
		opts.HistoryHours = DefaultHistoryHours
	}
	return &Pipeline{
		logger:    logger,
		source:    src,
		engineer:  engineer,
		predictor: pred,
		risk:      riskEngine,
		rules:     rules,
		book:      book,
		reports:   reports,
		opts:      opts,
		now:       time.Now,
	}
}

// Predictor exposes the underlying predictor.
func (p *Pipeline) Predictor() *predictor.Predictor { return p.predictor }

// Book exposes the alert book, which may be nil.
func (p *Pipeline) Book() *alerts.Book { return p.book }

// Reports exposes the report log, which may be nil.
func (p *Pipeline) Reports() *patterns.ReportLog { return p.reports }

// Evaluate fetches the recent window for deployment and runs the full pipeline on it.
func (p *Pipeline) Evaluate(ctx context.Context, deployment string) (Evaluation, error) {
	series, err := p.fetch(ctx, deployment, p.opts.HistoryHours)
	if err != nil {
		metrics.ObserveEvaluation(0, metrics.OutcomeError)
		return Evaluation{}, err
	}
	return p.EvaluateSeries(ctx, deployment, series)
}

// EvaluateSeries runs the pipeline on a caller-supplied series; the report describes
// its final snapshot.
func (p *Pipeline) EvaluateSeries(ctx context.Context, deployment string, series models.MetricSeries) (Evaluation, error) {
	start := time.Now()
	eval, err := p.evaluate(ctx, deployment, series)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveEvaluation(time.Since(start), outcome)
	return eval, err
}

func (p *Pipeline) evaluate(ctx context.Context, deployment string, series models.MetricSeries) (Evaluation, error) {
	table, err := p.engineer.Transform(series)
	if err != nil {
		return Evaluation{}, fmt.Errorf("engineer features: %w", err)
	}

	eval := Evaluation{Deployment: deployment}
	pred, err := p.predict(table)
	switch {
	case err == nil:
		eval.ModelVersion = pred.Version
		eval.Degraded = pred.Degraded
		eval.Prediction, _ = pred.Latest()
	case errors.Is(err, predictor.ErrNotTrained):
		eval.Degraded = []string{predictor.SubModelSequence, predictor.SubModelTabular}
		eval.Prediction = models.PredictionResult{Timestamp: series[len(series)-1].Timestamp}
		p.logger.Warn("no trained model, scoring from metrics only", slog.String("deployment", deployment))
	default:
		return Evaluation{}, fmt.Errorf("predict: %w", err)
	}
	for _, name := range eval.Degraded {
		metrics.ObserveDegraded(name)
	}

	latest := series[len(series)-1]
	eval.Report = p.risk.Evaluate(risk.Input{
		Deployment:    deployment,
		Timestamp:     latest.Timestamp,
		Metrics:       latest.Metrics(),
		Probability:   eval.Prediction.EnsembleProbability,
		HealthHistory: risk.HealthHistory(series, risk.TrendWindow),
	})

	eval.Alerts = alerts.Generate(eval.Report)
	for i := range eval.Alerts {
		// Rule-pack items follow the capped built-in list and are not subject to the cap.
		if extra := p.rules.Recommend(eval.Report, eval.Alerts[i]); len(extra) > 0 {
			builtin := append([]string(nil), eval.Alerts[i].Recommendations...)
			eval.Alerts[i].Recommendations = appendUnique(builtin, extra...)
		}
	}
	if p.book != nil {
		eval.Recorded = p.book.Record(ctx, eval.Alerts)
	}
	eval.Plan = alerts.Plan(eval.Report)

	if p.reports != nil {
		p.reports.Append(eval.Report)
	}
	metrics.SetRisk(deployment, eval.Report.HealthScore, eval.Report.FailureProbability.Overall)
	p.logger.Debug("evaluation complete",
		slog.String("deployment", deployment),
		slog.Float64("health_score", eval.Report.HealthScore),
		slog.Float64("failure_probability", eval.Report.FailureProbability.Overall),
		slog.Int("alerts", len(eval.Alerts)),
		slog.Int("recorded", len(eval.Recorded)))
	return eval, nil
}

func (p *Pipeline) predict(table *features.Table) (predictor.Prediction, error) {
	if p.predictor == nil {
		return predictor.Prediction{}, predictor.ErrNotTrained
	}
	return p.predictor.Predict(table)
}

func (p *Pipeline) fetch(ctx context.Context, deployment string, hours int) (models.MetricSeries, error) {
	if p.source == nil {
		return nil, fmt.Errorf("metric source not configured")
	}
	start, end := utils.HourWindow(p.now(), hours)
	series, err := p.source.FetchSeries(ctx, deployment, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch series: %w", err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("fetch series: %w", source.ErrNoSamples)
	}
	return series, nil
}
