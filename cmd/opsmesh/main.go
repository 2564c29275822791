// Package main provides the opsmesh CLI entry point: a two-service tool-use
// pipeline pairing an Operations Service (typed primitives over the host
// OS) with an Orchestrator (a model-driven tool-calling turn runner).
//
// Usage:
//
//	opsmesh serve-ops --config opsmesh.yaml
//	opsmesh serve-orchestrator --config opsmesh.yaml
//	opsmesh config-schema
//	opsmesh version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brightloop/opsmesh/internal/config"
	"github.com/brightloop/opsmesh/internal/observability"
	"github.com/brightloop/opsmesh/internal/ops"
	"github.com/brightloop/opsmesh/internal/orchestrator"
)

// Build information, populated by ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "opsmesh",
		Short:        "opsmesh - a two-tier AI tool-use pipeline",
		Long:         "opsmesh pairs an Operations Service exposing typed OS primitives with an Orchestrator that drives a local model through a bounded tool-calling loop.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "Override logging.format (json, text)")

	root.AddCommand(buildServeOpsCmd(), buildServeOrchestratorCmd(), buildConfigSchemaCmd(), buildVersionCmd())
	return root
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-schema",
		Short: "Print the JSON Schema for the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return fmt.Errorf("reflect config schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "opsmesh %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

func buildServeOpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-ops",
		Short: "Run the Operations Service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, metrics, err := loadRuntime()
			if err != nil {
				return err
			}
			ops.Version = version
			server := ops.NewServer(cfg.Ops, logger, metrics)
			return runUntilSignal(cmd.Context(), logger, "opsmesh-operations", server)
		},
	}
}

func buildServeOrchestratorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-orchestrator",
		Short: "Run the Orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, metrics, err := loadRuntime()
			if err != nil {
				return err
			}
			orchestrator.Version = version
			server := orchestrator.NewServer(cfg.Orchestrator, logger, metrics)
			return runUntilSignal(cmd.Context(), logger, "opsmesh-orchestrator", server)
		},
	}
}

// runnableServer is implemented by both ops.Server and orchestrator.Server.
type runnableServer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func loadRuntime() (*config.Config, *observability.Logger, *observability.Metrics, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()
	return cfg, logger, metrics, nil
}

// runUntilSignal starts server and blocks until it returns, either because
// SIGINT/SIGTERM cancelled ctx or the listener failed outright. Either way
// it then drains in-flight requests within a bounded grace period.
func runUntilSignal(ctx context.Context, logger *observability.Logger, name string, server runnableServer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "starting service", "service", name, "version", version)

	startErr := server.Start(ctx)

	logger.Info(ctx, "shutting down", "service", name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	stopErr := server.Stop(shutdownCtx)

	if startErr != nil {
		return fmt.Errorf("%s: %w", name, startErr)
	}
	if stopErr != nil {
		return fmt.Errorf("%s: graceful shutdown: %w", name, stopErr)
	}
	return nil
}
