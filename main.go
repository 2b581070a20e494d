package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/medassist/internal/adapter/llm"
	"github.com/xiaot623/gogo/medassist/internal/config"
	"github.com/xiaot623/gogo/medassist/internal/lease"
	"github.com/xiaot623/gogo/medassist/internal/logger"
	"github.com/xiaot623/gogo/medassist/internal/observability"
	"github.com/xiaot623/gogo/medassist/internal/orchestrator"
	"github.com/xiaot623/gogo/medassist/internal/policy"
	"github.com/xiaot623/gogo/medassist/internal/publisher"
	"github.com/xiaot623/gogo/medassist/internal/repository"
	"github.com/xiaot623/gogo/medassist/internal/resolver"
	"github.com/xiaot623/gogo/medassist/internal/service"
	handler "github.com/xiaot623/gogo/medassist/internal/transport/http"
)

func main() {
	root := &cobra.Command{
		Use:          "medassist",
		Short:        "Pre-hospital medical assistant backend",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), seedConfigsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func seedConfigsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-configs",
		Short: "Insert the default module configurations, skipping existing modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Configure(cfg.LogLevel, nil)

			db, err := store.NewSQLiteStore(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			defer db.Close()

			def := service.DefaultModuleConfig(cfg)
			configs, err := store.DefaultModuleConfigs(def)
			if file != "" {
				data, readErr := os.ReadFile(file)
				if readErr != nil {
					return readErr
				}
				configs, err = store.ParseModuleConfigs(data, def)
			}
			if err != nil {
				return err
			}

			created, err := db.SeedModuleConfigs(cmd.Context(), configs)
			if err != nil {
				return err
			}
			logger.Info("module configs seeded", "created", created, "skipped", len(configs)-len(created))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with module configurations (defaults to the built-in set)")
	return cmd
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg := config.Load()
	logger.Configure(cfg.LogLevel, nil)

	logger.Info("Starting medassist...", "port", cfg.HTTPPort, "database", cfg.DatabaseURL, "model", cfg.LLMModel)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Module configuration source
	var source resolver.Source = db
	if cfg.ConfigDatabaseURL != "" {
		pg, err := store.OpenPostgresConfigSource(ctx, cfg.ConfigDatabaseURL, "module_configs")
		if err != nil {
			return fmt.Errorf("failed to open config database: %w", err)
		}
		defer pg.Close()
		source = pg
		logger.Info("module configs read from shared database")
	}
	res := resolver.New(source,
		resolver.WithTTL(cfg.ConfigCacheTTL),
		resolver.WithRefreshTimeout(cfg.ConfigRefreshTimeout),
		resolver.WithDefault(service.DefaultModuleConfig(cfg)),
	)

	// Session leases
	var leaser lease.Leaser = lease.NewMemoryLeaser()
	if cfg.RedisURL != "" {
		rl, err := lease.OpenRedisLeaser(ctx, cfg.RedisURL, "medassist")
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rl.Close()
		leaser = rl
		logger.Info("session leases held in redis")
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	// Upstream model clients and the completion orchestrator
	clients := llm.NewFactory(cfg.LLMConnectTimeout, cfg.LLMIdleTimeout)
	orch := orchestrator.New(clients,
		orchestrator.NewFallback(policyEngine, cfg.FallbackDelay),
		orchestrator.WithRetries(cfg.UpstreamRetries),
		orchestrator.WithIdleTimeout(cfg.LLMIdleTimeout),
	)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Initialize service
	svc := service.New(db, res, orch, leaser, clients, metrics, cfg)
	go svc.RunStaleTurnMonitor(ctx, service.DefaultStaleTurnInterval)

	server := handler.NewServer(svc, publisher.New(metrics), registry)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("API started", "port", cfg.HTTPPort)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("Shutting down medassist...")

	// Graceful shutdown. In-flight turns keep running on their own contexts
	// until the process exits.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to shutdown server gracefully", "err", err)
	}

	logger.Info("medassist stopped")
	return nil
}
