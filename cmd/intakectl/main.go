package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"carepay/internal/app"
	"carepay/internal/platform/config"
	"carepay/internal/platform/logger"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "intakectl",
		Short:         "Operator tooling for the identity intake pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildDeps connects to the configured backends. Commands that write durable state
// refuse to run against the in-memory stores.
func buildDeps(ctx context.Context, requireDB bool) (*app.Deps, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if requireDB && cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	log := logger.New(cfg.Server.Environment, cfg.Server.LogLevel)
	return app.Build(ctx, cfg, log, prometheus.NewRegistry())
}
