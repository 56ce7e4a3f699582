package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"waenhancer/internal/config"
	"waenhancer/internal/constants"
	"waenhancer/internal/intercept"
	"waenhancer/internal/models"
	"waenhancer/internal/monitor"
	"waenhancer/internal/page"
	"waenhancer/internal/page/rodpage"
	"waenhancer/internal/retry"
	"waenhancer/internal/service"
	"waenhancer/pkg/protocol"
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
		fmt.Printf("waenhancer-monitor %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Monitor error: %v", err)
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
		ctx = service.WithVerbose(ctx, true)
	} else {
		config.ApplyLogLevel(logger)(cfg)
	}
	mc := cfg.Monitor

	browser, closeBrowser, err := rodpage.Connect(ctx, mc, logger)
	if err != nil {
		return err
	}
	defer closeBrowser()

	sw := &intercept.Switch{}
	tab, err := rodpage.Open(ctx, browser, mc.PageURL, logger, rodpage.Options{
		ObservePoll:   time.Duration(mc.ObserverPollMs) * time.Millisecond,
		ToastDuration: time.Duration(mc.ToastDurationMs) * time.Millisecond,
		WrapSockets: func(direct intercept.SocketSender) intercept.SocketSender {
			return sw.Sockets(intercept.NewPresenceFilter(direct, mc.PresenceMarkers, logger), direct)
		},
		WrapRequests: func(direct intercept.RequestIssuer) intercept.RequestIssuer {
			filtered := intercept.NewRequestFilter(direct, intercept.ReadReceiptClassifier(mc.ReadReceiptMarkers), logger)
			return sw.Requests(filtered, direct)
		},
	})
	if err != nil {
		return err
	}
	defer tab.Close()

	m := monitor.New(tab, tab, logger, monitor.Config{
		Wait: page.WaitOptions{
			Interval:    time.Duration(mc.WaitIntervalMs) * time.Millisecond,
			MaxAttempts: mc.WaitMaxAttempts,
		},
		StatusSettle:  time.Duration(mc.StatusSettleMs) * time.Millisecond,
		PreviewLength: mc.PreviewLength,
		Interception:  sw,
		DownloadDir:   mc.DownloadDir,
	})
	if err := m.Start(ctx); err != nil {
		logger.WithError(err).Warn("Monitor started with default settings")
	}
	defer m.Stop()

	if mc.MetricsListen != "" {
		go serveMetrics(ctx, mc.MetricsListen, logger)
	}

	go maintainBackend(ctx, cfg, m, logger)

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case <-tab.Done():
		logger.Warn("Page closed")
	}
	return nil
}

// maintainBackend keeps the monitor connected to the background process, reloading
// settings after every reconnect.
func maintainBackend(ctx context.Context, cfg *models.Config, m *monitor.Monitor, logger *logrus.Logger) {
	backoffCfg := retry.BackoffConfig{
		InitialDelay: constants.DefaultReconnectInitialMs * time.Millisecond,
		MaxDelay:     constants.DefaultReconnectMaxSec * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultReconnectAttempts,
		Jitter:       true,
	}

	for ctx.Err() == nil {
		var conn *protocol.Conn
		err := retry.NewBackoff(backoffCfg).OnRetry(func(attempt int, delay time.Duration, err error) {
			logger.WithFields(logrus.Fields{
				service.LogFieldAttempt: attempt,
				"delay":                 delay,
			}).WithError(err).Debug("Retrying background connection")
		}).Retry(ctx, func() error {
			var dialErr error
			conn, dialErr = protocol.Dial(ctx, cfg.Monitor.BackendURL, cfg.Server.AuthToken, logger,
				protocol.WithCommandHandler(m.HandleCommand))
			return dialErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("Background process unreachable; features keep running on cached settings")
			continue
		}

		runErr := make(chan error, 1)
		go func() { runErr <- conn.Run(ctx) }()

		m.SetBackend(conn)
		logger.WithField("url", cfg.Monitor.BackendURL).Info("Connected to background process")
		if err := m.Reload(ctx); err != nil {
			logger.WithError(err).Warn("Failed to reload settings after connect")
		}

		err = <-runErr
		m.SetBackend(nil)
		if ctx.Err() == nil {
			logger.WithError(err).Warn("Lost connection to background process")
		}
	}
}

func serveMetrics(ctx context.Context, addr string, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	logger.WithField("addr", addr).Info("Serving monitor metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("Metrics listener failed")
	}
}
