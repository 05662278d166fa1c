package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-forecast/internal/api"
)

func newTrainCommand(opts *globalOptions) *cobra.Command {
	var (
		input      string
		save       string
		deployment string
		hours      int
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the hybrid predictor",
		Long: `Train locally on a series file written by "simulate" and optionally save the
model artifact, or ask a running engine (--server) to train on a deployment's history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.server != "" {
				req := api.TrainRequest{Deployment: deployment, HistoryHours: hours}
				if err := req.Validate(); err != nil {
					return err
				}
				return callRemote(cmd, opts.server, api.MethodTrain, req)
			}
			if input == "" {
				return fmt.Errorf("--input is required for local training")
			}
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			doc, err := readSeries(input)
			if err != nil {
				return err
			}
			pipeline, err := localPipeline(cfg, logger, "")
			if err != nil {
				return err
			}
			report, err := pipeline.TrainSeries(cmd.Context(), doc.Series)
			if err != nil {
				return err
			}
			if save != "" {
				if err := saveModel(pipeline, save); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Series file for local training")
	cmd.Flags().StringVar(&save, "save", "", "Write the trained model artifact to this path")
	cmd.Flags().StringVar(&deployment, "deployment", "", "Deployment to train on (remote)")
	cmd.Flags().IntVar(&hours, "hours", 0, "History hours (remote; 0 uses the engine default)")
	return cmd
}
