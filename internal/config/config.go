package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"waenhancer/internal/constants"
	"waenhancer/internal/models"
	"waenhancer/internal/security"
	"waenhancer/internal/tracing"
	"waenhancer/internal/validation"
)

var (
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
	ErrMissingBackendURL = models.ConfigError{Message: "missing monitor backend URL"}
)

// Environment variables that override the config file.
const (
	EnvHost          = "WAE_HOST"
	EnvPort          = "WAE_PORT"
	EnvAuthToken     = "WAE_AUTH_TOKEN"
	EnvDBPath        = "WAE_DB_PATH"
	EnvAIBaseURL     = "WAE_AI_BASE_URL"
	EnvBackendURL    = "WAE_BACKEND_URL"
	EnvPageURL       = "WAE_PAGE_URL"
	EnvControlURL    = "WAE_BROWSER_CONTROL_URL"
	EnvLogLevel      = "WAE_LOG_LEVEL"
	EnvEnvironment   = "WAE_ENV"
	EnvEncryptAPIKey = "WAE_ENCRYPT_API_KEY"
	EnvDownloadDir   = "WAE_DOWNLOAD_DIR"
)

// LoadConfig reads the JSON config at path, fills defaults, applies WAE_* overrides and
// validates the result. An empty path yields the defaults plus overrides.
func LoadConfig(path string) (*models.Config, error) {
	config := Default()

	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(config)
	applyEnvironmentOverrides(config)

	if err := validate(config); err != nil {
		return nil, err
	}
	if err := validateSecurity(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns a config with every section at its default.
func Default() *models.Config {
	c := &models.Config{Tracing: tracing.DefaultTracingConfig()}
	applyDefaults(c)
	return c
}

func applyDefaults(c *models.Config) {
	if c.Server.Host == "" {
		c.Server.Host = constants.DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.RateLimitPerSecond <= 0 {
		c.Server.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = constants.DefaultRateLimitBurst
	}
	if c.Server.RelayTimeoutSec <= 0 {
		c.Server.RelayTimeoutSec = constants.DefaultRelayTimeoutSec
	}

	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultBackoffInitialMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultBackoffMaxSec * 1000
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}

	if c.AI.BaseURL == "" {
		c.AI.BaseURL = constants.DefaultAIBaseURL
	}
	if c.AI.DefaultModel == "" {
		c.AI.DefaultModel = constants.DefaultAIModel
	}
	if c.AI.TimeoutSec <= 0 {
		c.AI.TimeoutSec = constants.DefaultAITimeoutSec
	}
	if c.AI.BreakerMaxFailures <= 0 {
		c.AI.BreakerMaxFailures = constants.DefaultBreakerMaxFailures
	}
	if c.AI.BreakerTimeoutSec <= 0 {
		c.AI.BreakerTimeoutSec = constants.DefaultBreakerTimeoutSec
	}

	if c.Scheduler.SweepIntervalSec <= 0 {
		c.Scheduler.SweepIntervalSec = constants.DefaultSweepIntervalSec
	}
	if c.Scheduler.BackupIntervalMin <= 0 {
		c.Scheduler.BackupIntervalMin = constants.DefaultBackupIntervalMin
	}

	m := &c.Monitor
	if m.BackendURL == "" {
		m.BackendURL = constants.DefaultBackendURL
	}
	if m.PageURL == "" {
		m.PageURL = constants.DefaultPageURL
	}
	if m.WaitIntervalMs <= 0 {
		m.WaitIntervalMs = constants.DefaultWaitIntervalMs
	}
	if m.WaitMaxAttempts <= 0 {
		m.WaitMaxAttempts = constants.DefaultWaitMaxAttempts
	}
	if m.StatusSettleMs <= 0 {
		m.StatusSettleMs = constants.DefaultStatusSettleMs
	}
	if m.ToastDurationMs <= 0 {
		m.ToastDurationMs = constants.DefaultToastDurationMs
	}
	if m.ObserverPollMs <= 0 {
		m.ObserverPollMs = constants.DefaultObserverPollMs
	}
	if m.PreviewLength <= 0 {
		m.PreviewLength = constants.DefaultPreviewLength
	}
	if len(m.PresenceMarkers) == 0 {
		m.PresenceMarkers = []string{constants.DefaultPresenceMarker}
	}
	if len(m.ReadReceiptMarkers) == 0 {
		m.ReadReceiptMarkers = []string{constants.DefaultReadReceiptMarker}
	}
	if m.DownloadDir == "" {
		m.DownloadDir = constants.DefaultDownloadDir
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if host := os.Getenv(EnvHost); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv(EnvPort); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}
	// SECURITY: the shared token should come from the environment, not the file.
	if token := os.Getenv(EnvAuthToken); token != "" {
		c.Server.AuthToken = token
	}
	if path := os.Getenv(EnvDBPath); path != "" {
		c.Database.Path = path
	}
	if v := os.Getenv(EnvEncryptAPIKey); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Database.EncryptAPIKey = enabled
		}
	}
	if url := os.Getenv(EnvAIBaseURL); url != "" {
		c.AI.BaseURL = url
	}
	if url := os.Getenv(EnvBackendURL); url != "" {
		c.Monitor.BackendURL = url
	}
	if url := os.Getenv(EnvPageURL); url != "" {
		c.Monitor.PageURL = url
	}
	if url := os.Getenv(EnvControlURL); url != "" {
		c.Monitor.ControlURL = url
	}
	if dir := os.Getenv(EnvDownloadDir); dir != "" {
		c.Monitor.DownloadDir = dir
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if err := security.ValidateFilePath(c.Database.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid database path: %v", err)}
	}
	if c.Monitor.BackendURL == "" {
		return ErrMissingBackendURL
	}
	if err := security.ValidateFilePath(c.Monitor.DownloadDir); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid download dir: %v", err)}
	}

	ranges := []struct {
		value    int
		field    string
		min, max int
	}{
		{c.Server.Port, "server.port", 1, 65535},
		{c.Server.RateLimitBurst, "server.rateLimitBurst", 1, 10000},
		{c.Retry.MaxAttempts, "retry.maxAttempts", 1, 100},
		{c.AI.TimeoutSec, "ai.timeoutSec", 1, 600},
		{c.Scheduler.SweepIntervalSec, "scheduler.sweepIntervalSec", 1, 3600},
		{c.Monitor.WaitMaxAttempts, "monitor.waitMaxAttempts", 1, 10000},
		{c.Monitor.PreviewLength, "monitor.previewLength", 1, 1000},
	}
	for _, r := range ranges {
		if err := validation.ValidateNumericRange(r.value, r.field, r.min, r.max); err != nil {
			return models.ConfigError{Message: err.Error() + " (" + r.field + ")"}
		}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid log level %q", c.LogLevel)}
	}
	if err := tracing.Validate(c.Tracing); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	return nil
}

// validateSecurity refuses to expose the background service beyond loopback without a
// shared token in production.
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv(EnvEnvironment) == "production"
	loopback := isLoopback(c.Server.Host)

	if c.Server.AuthToken == "" && !loopback {
		if isProduction {
			return models.ConfigError{Message: fmt.Sprintf(
				"auth token is required when listening on %s (set %s)", c.Server.Host, EnvAuthToken)}
		}
		fmt.Fprintf(os.Stderr, "WARNING: listening on %s without an auth token. Set %s.\n", c.Server.Host, EnvAuthToken)
	}
	if isProduction && strings.EqualFold(c.LogLevel, "debug") {
		return models.ConfigError{Message: "debug logging should not be used in production (message content is logged)"}
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
