package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/simulator"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

type seriesDocument struct {
	Deployment string              `json:"deployment,omitempty"`
	Series     models.MetricSeries `json:"series"`
}

func newSimulateCommand() *cobra.Command {
	var (
		hours         int
		seed          int64
		degradedHours int
		deployment    string
		output        string
		end           string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate a synthetic hourly metric series",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours <= 0 {
				return fmt.Errorf("--hours must be positive")
			}
			now := time.Now().UTC().Truncate(time.Hour)
			if end != "" {
				t, err := utils.ParseRFC3339(end)
				if err != nil {
					return fmt.Errorf("parse --end: %w", err)
				}
				now = t
			}
			series := simulator.NewGenerator(simulator.Config{Seed: seed, Now: now}).Generate(hours)
			if degradedHours > 0 {
				series = simulator.InjectFailureScenario(series, max(0, len(series)-degradedHours), degradedHours)
			}
			doc := seriesDocument{Deployment: deployment, Series: series}
			if output != "" {
				return writeJSONFile(output, doc)
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 30*24, "Number of hourly snapshots")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().IntVar(&degradedHours, "degraded-hours", 0, "Trailing hours carrying an injected failure scenario")
	cmd.Flags().StringVar(&deployment, "deployment", "", "Deployment name recorded in the output")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().StringVar(&end, "end", "", "RFC3339 end of the series (default: current hour)")
	return cmd
}

func readSeries(path string) (seriesDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return seriesDocument{}, fmt.Errorf("read series: %w", err)
	}
	var doc seriesDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		var bare models.MetricSeries
		if err2 := json.Unmarshal(raw, &bare); err2 != nil {
			return seriesDocument{}, fmt.Errorf("parse series: %w", err)
		}
		doc.Series = bare
	}
	if len(doc.Series) == 0 {
		return seriesDocument{}, fmt.Errorf("series file %s has no snapshots", path)
	}
	return doc, nil
}
