package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"waenhancer/internal/config"
	"waenhancer/internal/constants"
	"waenhancer/internal/database"
	"waenhancer/internal/metrics"
	"waenhancer/internal/retry"
	"waenhancer/internal/service"
	"waenhancer/internal/tracing"
	"waenhancer/pkg/circuitbreaker"
	"waenhancer/pkg/gemini"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes message content)")
	configPath = flag.String("config", "", "Path to configuration file; defaults and WAE_* variables apply when empty")
	envFile    = flag.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("waenhancer %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WithError(err).Warn("Failed to load env file")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - message content will be logged")
	} else {
		config.ApplyLogLevel(logger)(cfg)
	}

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting waenhancer background service")

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	var db *database.Database
	backoff := retry.NewBackoff(retry.FromConfig(cfg.Retry)).OnRetry(func(attempt int, delay time.Duration, err error) {
		logger.WithFields(logrus.Fields{
			service.LogFieldAttempt: attempt,
			"delay":                 delay,
		}).WithError(err).Warn("Retrying database initialization")
	})
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path, database.WithAPIKeyEncryption(cfg.Database.EncryptAPIKey))
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	seeded, err := db.SeedDefaults(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed default settings: %w", err)
	}
	if seeded {
		logger.Info("Seeded default settings")
	}

	breaker := circuitbreaker.New("gemini", cfg.AI.BreakerMaxFailures,
		time.Duration(cfg.AI.BreakerTimeoutSec)*time.Second, logger,
		circuitbreaker.WithCountable(gemini.CountsAsFailure),
		circuitbreaker.WithStateChange(func(name string, _, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		}),
	)
	aiClient := gemini.NewClient(cfg.AI.BaseURL, time.Duration(cfg.AI.TimeoutSec)*time.Second, logger,
		gemini.WithBreaker(breaker))

	hub := service.NewHub(time.Duration(cfg.Server.RelayTimeoutSec)*time.Second, logger)
	autoReply := service.NewAutoReplyEngine(hub, logger)
	broker := service.NewBroker(db, aiClient, hub, autoReply, cfg.AI.DefaultModel, logger)
	if err := broker.LoadRules(ctx); err != nil {
		return fmt.Errorf("failed to load autoreply rules: %w", err)
	}

	scheduler := service.NewScheduler(db, hub, cfg.Scheduler, logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	if *configPath != "" && !*verbose {
		watcher := config.NewConfigWatcher(*configPath, logger)
		watcher.OnConfigChange(config.ApplyLogLevel(logger))
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	baseCtx := service.WithVerbose(ctx, *verbose)
	server := NewServer(baseCtx, cfg.Server, broker, hub, db, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
