// qcmcp is the QuantConnect MCP bridge: a stateful HTTP service that sits
// between a conversational agent and the QuantConnect platform API,
// resolving omitted arguments from session context and supervising
// long-running platform operations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alexmahrou/mcp-server/internal/catalog"
	"github.com/alexmahrou/mcp-server/internal/config"
	"github.com/alexmahrou/mcp-server/internal/logging"
	"github.com/alexmahrou/mcp-server/internal/observability"
	"github.com/alexmahrou/mcp-server/internal/orchestrator"
	"github.com/alexmahrou/mcp-server/internal/qcapi"
	"github.com/alexmahrou/mcp-server/internal/server"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "qcmcp",
		Short: "QuantConnect context bridge",
		Long: `qcmcp keeps a per-session context of QuantConnect entities
(projects, compiles, backtests, optimizations, live deployments) and uses it
to fill in arguments the caller omitted, so an agent can say "run a backtest"
without repeating identifiers on every call.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newServeCommand(configPath *string) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Debug mode")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("qcmcp %s (%s)\n", version, commit)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, debug bool) error {
	obsLogger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logger := logging.FromObservability(obsLogger, "qcmcp")

	metrics, err := observability.NewMetrics(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	tracerProvider, err := observability.NewTracerProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tracerProvider.Shutdown(context.Background())

	registry := catalog.Default()
	if cfg.CatalogPath != "" {
		if err := registry.LoadYAMLFile(cfg.CatalogPath); err != nil {
			return fmt.Errorf("load catalog %s: %w", cfg.CatalogPath, err)
		}
		logger.Info("loaded catalog extensions from %s", cfg.CatalogPath)
	}

	client := qcapi.New(cfg.API, registry, logging.FromObservability(obsLogger, "qcapi"))
	hub := server.NewEventHub(logging.FromObservability(obsLogger, "events"))

	session := orchestrator.NewSession(registry, client, orchestrator.Options{
		RecentCap: cfg.Context.RecentCap,
		Poll:      cfg.Poll,
		Logger:    logging.FromObservability(obsLogger, "session"),
		Metrics:   metrics,
		Notify:    hub.Publish,
	})
	logger.Info("session %s ready, %d operations registered", session.ID, len(registry.Names()))

	srv := server.New(session, server.Config{
		Addr:        cfg.Server.Addr,
		CORSOrigins: cfg.Server.CORSOrigins,
		Debug:       debug,
	}, hub, logging.FromObservability(obsLogger, "http"))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
