package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	http_handler "fedwatch.dashboard/internal/adapters/handler/http"
	"fedwatch.dashboard/internal/adapters/handler/mqtt"
	"fedwatch.dashboard/internal/adapters/repository/pg"
	redis_store "fedwatch.dashboard/internal/adapters/store/redis"
	"fedwatch.dashboard/internal/config"
	"fedwatch.dashboard/internal/core/jobview"
	"fedwatch.dashboard/internal/core/logger"
	"fedwatch.dashboard/internal/core/services"
	"fedwatch.dashboard/internal/core/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting FedWatch dashboard", "version", version)

	if cfg.EnableTracing {
		shutdownTracing, err := tracing.Init(cfg.ServiceName, version, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
		} else {
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.Error("Failed to shutdown tracing", "error", err)
				}
			}()
		}
	}

	repo, err := pg.NewRepository(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to init postgres: %w", err)
	}

	store, err := redis_store.NewAdapter(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}
	defer store.Client().Close()

	reader := redis_store.NewMetricsReader(3 * time.Second)
	defer reader.Close()

	jobService := services.NewJobService(repo, store, jobview.SystemClock{})
	authService := services.NewAuthService(repo, store, cfg.TokenTTL, cfg.LoginRatePerSec, cfg.LoginBurst)
	if err := authService.EnsureDefaultUser(ctx); err != nil {
		return err
	}

	metricsSync := services.NewMetricsSync(jobService, reader, cfg.SyncInterval)
	if cfg.EnableMetrics {
		metricsSync.OnSync = http_handler.RecordMetricsSync
	}
	go metricsSync.Start(ctx)
	go reportJobCounts(ctx, jobService, cfg.SyncInterval)

	healthService := services.NewHealthService(repo.DB(), store.Client(), metricsSync, version)

	hub := http_handler.NewHub(store)
	go hub.Run(ctx)
	go hub.JobUpdateConsumer(ctx)

	if cfg.MQTTBrokerURL != "" {
		publisher, err := mqtt.NewPublisher(store, cfg.MQTTBrokerURL, cfg.MQTTPrefix)
		if err != nil {
			logger.Error("Failed to init MQTT publisher", "error", err)
		} else if err := publisher.Start(ctx); err != nil {
			logger.Error("Failed to start MQTT publisher", "error", err)
		} else {
			logger.Info("MQTT publisher started", "prefix", cfg.MQTTPrefix)
		}
	}

	server := http_handler.NewServer(jobService, authService, healthService, hub, cfg.StaticDir)
	logger.Info("HTTP server starting", "port", cfg.HTTPPort)
	if err := server.Run(ctx, ":"+cfg.HTTPPort); err != nil {
		return fmt.Errorf("http server failed: %w", err)
	}
	logger.Info("Shut down gracefully")
	return nil
}

// reportJobCounts keeps the per-status job gauge current.
func reportJobCounts(ctx context.Context, jobs *services.JobService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := jobs.CountJobsByStatus(ctx)
			if err != nil {
				logger.Warn("Failed to count jobs", "error", err)
				continue
			}
			http_handler.SetJobsByStatus(counts)
		}
	}
}
