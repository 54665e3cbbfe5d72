package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dmmcquay/katago-retro/internal/cache"
	"github.com/dmmcquay/katago-retro/internal/coach"
	"github.com/dmmcquay/katago-retro/internal/health"
	"github.com/dmmcquay/katago-retro/internal/katago"
	mcptools "github.com/dmmcquay/katago-retro/internal/mcp"
	"github.com/dmmcquay/katago-retro/internal/metrics"
	"github.com/dmmcquay/katago-retro/internal/ratelimit"
	httpserver "github.com/dmmcquay/katago-retro/internal/server"
	"github.com/dmmcquay/katago-retro/internal/shutdown"
	"github.com/dmmcquay/katago-retro/internal/store"
)

const (
	shutdownTimeout    = 30 * time.Second
	cacheStatsInterval = 15 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	logger.Info("Starting KataGo retro server version %s (commit: %s, built: %s)",
		Version, GitCommit, BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Components are stopped in reverse order of registration.
	shutdownMgr := shutdown.NewManager(logger)

	collector := metrics.NewPrometheusCollector()

	var reviewStore *store.Store
	if cfg.Store.Enabled {
		reviewStore, err = store.Open(cfg.Store.Path, logger)
		if err != nil {
			return fmt.Errorf("failed to open review store: %w", err)
		}
		shutdownMgr.Register("store", func(context.Context) error {
			return reviewStore.Close()
		})
	}

	cacheManager := cache.NewManager[*katago.AnalysisResult](&cfg.Cache, logger)
	engine := katago.NewEngine(&cfg.KataGo, logger, cacheManager, collector)
	supervisor := katago.NewSupervisor(engine, logger, collector)
	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine supervisor: %w", err)
	}
	shutdownMgr.Register("katago", func(context.Context) error {
		return supervisor.Stop()
	})

	if cacheManager.IsEnabled() {
		go reportCacheStats(ctx, cacheManager, collector)
	}

	reviews := coach.New(coach.Options{
		Engine:  supervisor.GetEngine(),
		Config:  &cfg.Retro,
		Logger:  logger,
		Metrics: collector,
		Store:   reviewStore,
	})
	shutdownMgr.Register("reviews", reviews.Shutdown)

	rateLimiter := ratelimit.NewLimiter(&cfg.RateLimit, logger)
	shutdownMgr.Register("ratelimit", func(context.Context) error {
		rateLimiter.Stop()
		return nil
	})

	healthChecker := health.NewChecker(logger, Version, GitCommit)
	healthChecker.RegisterCheck("katago", supervisor.HealthCheck)
	if reviewStore != nil {
		// Reviews still run without history.
		healthChecker.RegisterCheck("store", func(ctx context.Context) error {
			return health.Degraded(reviewStore.Ping(ctx))
		})
	}

	if cfg.Server.HTTPAddr != "" {
		httpServer := httpserver.NewHTTPServer(cfg.Server.HTTPAddr, logger, healthChecker, collector, prometheus.DefaultGatherer)
		if err := httpServer.Start(); err != nil {
			_ = shutdownMgr.Shutdown(shutdownTimeout)
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		shutdownMgr.Register("http", httpServer.Stop)
		logger.Info("HTTP server started", "addr", httpServer.Addr())
	}

	mcpServer := server.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	toolsHandler := mcptools.NewToolsHandler(reviews, supervisor, logger)
	toolsHandler.SetMiddleware(mcptools.NewMiddleware(logger, collector, rateLimiter))
	if reviewStore != nil {
		toolsHandler.SetStore(reviewStore)
	}
	toolsHandler.RegisterTools(mcpServer)

	shutdownMgr.HandleSignals(shutdownTimeout)

	logger.Info("KataGo retro server ready")

	done := make(chan error, 1)
	go func() {
		done <- server.ServeStdio(mcpServer)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Server error", "error", err)
		}
	case <-shutdownMgr.Done():
		logger.Info("Server stopped by signal")
	}

	cancel()
	return shutdownMgr.Shutdown(shutdownTimeout)
}

func reportCacheStats(ctx context.Context, m *cache.Manager[*katago.AnalysisResult], collector *metrics.PrometheusCollector) {
	ticker := time.NewTicker(cacheStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := m.Stats()
			collector.SetCacheStats(float64(stats.Items), float64(stats.Size))
		}
	}
}
