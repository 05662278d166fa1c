package engine

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultFleetConcurrency bounds concurrent deployment evaluations.
const DefaultFleetConcurrency = 4

// FleetResult is the outcome for one deployment of a fleet run.
type FleetResult struct {
	Deployment string
	Evaluation Evaluation
	Err        error
}

// EvaluateFleet evaluates every deployment concurrently. A failing deployment is
// reported in its result and does not stop the others. Results keep input order.
func (p *Pipeline) EvaluateFleet(ctx context.Context, deployments []string, concurrency int) []FleetResult {
	if concurrency <= 0 {
		concurrency = DefaultFleetConcurrency
	}
	results := make([]FleetResult, len(deployments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, deployment := range deployments {
		i, deployment := i, deployment // per-iteration copies; module targets go 1.21
		g.Go(func() error {
			results[i].Deployment = deployment
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			eval, err := p.Evaluate(gctx, deployment)
			if err != nil {
				p.logger.Warn("deployment evaluation failed", slog.String("deployment", deployment), slog.Any("error", err))
				results[i].Err = err
				return nil
			}
			results[i].Evaluation = eval
			return nil
		})
	}
	_ = g.Wait()
	return results
}
