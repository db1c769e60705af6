// Package main is the entry point for the trip notification core.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/flightops/tripnotifier/internal/cleaner"
	"github.com/flightops/tripnotifier/internal/config"
	"github.com/flightops/tripnotifier/internal/delivery"
	"github.com/flightops/tripnotifier/internal/engine"
	"github.com/flightops/tripnotifier/internal/flightdata"
	"github.com/flightops/tripnotifier/internal/ingress"
	"github.com/flightops/tripnotifier/internal/metrics"
	"github.com/flightops/tripnotifier/internal/retry"
	"github.com/flightops/tripnotifier/internal/scheduler"
	"github.com/flightops/tripnotifier/internal/storage"
	"github.com/flightops/tripnotifier/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "/config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting tripnotifier",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("log_level", cfg.App.LogLevel),
	)

	db, err := store.NewSQLiteStore(cfg.Storage.DBPath, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	metricsServer := metrics.NewServer(
		cfg.Metrics.Port,
		cfg.Metrics.Path,
		cfg.Health.LivenessPath,
		cfg.Health.ReadinessPath,
		registry,
	)
	metricsServer.UpdateHealthCheck("database", "ok")

	flightExecutor := retry.NewExecutor("flightdata", toRetryPolicy(cfg.Retry.FlightData), m, logger)
	messagingExecutor := retry.NewExecutor("messaging", toRetryPolicy(cfg.Retry.Messaging), m, logger)

	flightClient := flightdata.NewClient(
		&http.Client{Timeout: cfg.FlightData.Timeout.Duration},
		cfg.FlightData.BaseURL,
		cfg.FlightDataAPIKey,
		cfg.FlightData.CacheTTL.Duration,
		m,
	)
	// No Timeout is set on this http.Client: delivery.Client bounds each call
	// itself via context.WithTimeout, using a shorter deadline for template/
	// text sends than for media sends. An outer client-wide Timeout would
	// clip the longer media deadline before it ever applied.
	deliveryClient := delivery.NewClient(
		&http.Client{},
		cfg.Delivery.BaseURL,
		cfg.DeliveryAPIKey,
		m,
	)

	eng := engine.New(db, flightClient, deliveryClient, flightExecutor, messagingExecutor, cfg.Notify, m, logger)

	sched := scheduler.New(scheduler.Config{
		TickInterval:         cfg.Scheduler.TickInterval.Duration,
		Workers:              cfg.Scheduler.Workers,
		CycleTimeout:         cfg.Scheduler.CycleTimeout.Duration,
		LookbackWindow:       cfg.Scheduler.LookbackWindow.Duration,
		SaturationMultiplier: cfg.Scheduler.SaturationMultiplier,
	}, db, eng.ProcessTrip, m, logger)

	ingressHandler := ingress.NewHandler(db, eng, logger)
	ingressServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Ingress.Port),
		Handler: ingressHandler.Mux(),
	}

	c := cleaner.NewCleaner(db, cfg, m, logger)
	sm := storage.NewMonitor(db, cfg, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting metrics server", zap.Int("port", cfg.Metrics.Port))
		return metricsServer.Start()
	})

	g.Go(func() error {
		logger.Info("starting ingress server", zap.Int("port", cfg.Ingress.Port))
		metricsServer.UpdateHealthCheck("ingress", "ok")
		err := ingressServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting scheduler",
			zap.Duration("tick_interval", cfg.Scheduler.TickInterval.Duration),
			zap.Int("workers", cfg.Scheduler.Workers),
		)
		metricsServer.UpdateHealthCheck("scheduler", "ok")
		return sched.Run(gCtx)
	})

	if cfg.Retention.Enabled {
		g.Go(func() error {
			logger.Info("starting cleaner",
				zap.Duration("interval", cfg.Retention.CleanupInterval.Duration),
				zap.Duration("retention", cfg.Retention.RetentionPeriod.Duration),
			)
			c.Start(gCtx)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("starting storage monitor",
			zap.Duration("interval", cfg.Storage.MonitorInterval.Duration),
		)
		sm.Start(gCtx)
		return nil
	})

	metricsServer.SetReady(true)
	logger.Info("tripnotifier is ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-gCtx.Done():
		logger.Info("context cancelled")
	}

	logger.Info("starting graceful shutdown")
	metricsServer.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := ingressServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ingress server shutdown error", zap.Error(err))
	}

	cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}

	if err := g.Wait(); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}

	logger.Info("tripnotifier shutdown complete")
}

func toRetryPolicy(rc config.RetryPolicyConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: rc.MaxAttempts,
		Base:        rc.Base.Duration,
		Cap:         rc.Cap.Duration,
		Jitter:      rc.Jitter,
	}
}

func newLogger(level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}
