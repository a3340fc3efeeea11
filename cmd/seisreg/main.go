package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"seisreg/internal/platform/config"
	"seisreg/internal/platform/logger"
)

const programName = "seisreg"

type configKey struct{}

func configFrom(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(configKey{}).(*config.Config)
	return cfg
}

// commonRun installs the process logger as the slog default.
func commonRun(cfg *config.Config) *slog.Logger {
	log := logger.New(os.Stdout, cfg.Log.Format, cfg.Log.Level).With("component", programName)
	slog.SetDefault(log)
	return log
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Seismic dataset and model registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveRun(cmd.Context(), configFrom(cmd.Context()))
		},
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(tokenCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
