package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/miradorstack/mirador-forecast/internal/config"
	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/features"
	"github.com/miradorstack/mirador-forecast/internal/predictor"
	"github.com/miradorstack/mirador-forecast/internal/risk"
)

// localPipeline wires the in-process pipeline from configuration, without a source or
// alert book.
func localPipeline(cfg *config.Config, logger *slog.Logger, modelPath string) (*engine.Pipeline, error) {
	thresholds, err := cfg.RiskThresholds()
	if err != nil {
		return nil, err
	}
	rules, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		return nil, err
	}
	pred := predictor.New(cfg.Predictor.Config, cfg.Predictor.Capabilities, logger)
	if modelPath != "" {
		f, err := os.Open(modelPath)
		if err != nil {
			return nil, fmt.Errorf("open model: %w", err)
		}
		defer f.Close()
		model, err := predictor.Load(f)
		if err != nil {
			return nil, err
		}
		if err := pred.Install(model); err != nil {
			return nil, err
		}
	}
	return engine.NewPipeline(
		logger,
		nil,
		features.NewEngineer(cfg.Features, logger),
		pred,
		risk.New(thresholds),
		rules,
		nil,
		nil,
		engine.Options{LookaheadHours: cfg.Training.LookaheadHours},
	), nil
}
