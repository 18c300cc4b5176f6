package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rimborsami/rimborsami/internal/config"
	"github.com/rimborsami/rimborsami/internal/domain"
)

var (
	configFile string
	cfg        *domain.Config
	logCloser  io.Closer
)

var rootCmd = &cobra.Command{
	Use:          "rimborsami",
	Short:        "Refund eligibility scoring and document risk assessment",
	Long:         "Scores quiz answers against the refund rule table, matches the opportunity catalog and assesses parsed documents.",
	SilenceUsage: true,
	Version:      fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		logger, closer, err := config.NewLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		slog.SetDefault(logger)
		logCloser = closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./rimborsami.yaml)")
}
