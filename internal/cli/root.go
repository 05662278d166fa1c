package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-forecast/internal/config"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

// Version is stamped at build time.
var Version = "0.1.0"

type globalOptions struct {
	configPath string
	server     string
	logLevel   string
}

// NewRootCommand builds the forecastctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "forecastctl",
		Short: "Forecast ML service failures from operational metrics",
		Long: `forecastctl simulates telemetry, trains the hybrid failure predictor and
evaluates deployments, either locally or against a running forecast engine.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.server, "server", "", "Forecast engine gRPC address; empty runs locally")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level for local runs")
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("forecastctl version %s\n", Version))

	root.AddCommand(
		newSimulateCommand(),
		newTrainCommand(opts),
		newEvaluateCommand(opts),
		newAlertsCommand(opts),
		newHealthCommand(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *globalOptions) load(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	level := o.logLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	return cfg, utils.NewLoggerTo(stderr, level, cfg.Logging.JSON), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeJSON(f, v)
}
