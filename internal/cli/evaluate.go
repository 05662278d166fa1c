package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-forecast/internal/api"
	"github.com/miradorstack/mirador-forecast/internal/engine"
)

func newEvaluateCommand(opts *globalOptions) *cobra.Command {
	var (
		input      string
		model      string
		deployment string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Produce a risk report, alerts and a mitigation plan",
		Long: `Evaluate the final snapshot of a series file locally, optionally scoring with a
saved model artifact, or evaluate a deployment on a running engine (--server).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.server != "" {
				req := api.EvaluateRequest{Deployment: deployment}
				if err := req.Validate(); err != nil {
					return err
				}
				return callRemote(cmd, opts.server, api.MethodEvaluate, req)
			}
			if input == "" {
				return fmt.Errorf("--input is required for local evaluation")
			}
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			doc, err := readSeries(input)
			if err != nil {
				return err
			}
			pipeline, err := localPipeline(cfg, logger, model)
			if err != nil {
				return err
			}
			name := deployment
			if name == "" {
				name = doc.Deployment
			}
			eval, err := pipeline.EvaluateSeries(cmd.Context(), name, doc.Series)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), eval)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Series file for local evaluation")
	cmd.Flags().StringVar(&model, "model", "", "Model artifact for local evaluation")
	cmd.Flags().StringVar(&deployment, "deployment", "", "Deployment name")
	return cmd
}

func saveModel(pipeline *engine.Pipeline, path string) error {
	model := pipeline.Predictor().Model()
	if model == nil {
		return fmt.Errorf("no model to save")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	if err := model.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("write model: %w", err)
	}
	return f.Close()
}
