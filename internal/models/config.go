package models

// Config holds the service configuration for both processes.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Retry     RetryConfig     `json:"retry"`
	AI        AIConfig        `json:"ai"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Monitor   MonitorConfig   `json:"monitor"`
	Tracing   TracingConfig   `json:"tracing"`
	LogLevel  string          `json:"log_level"`
}

type ServerConfig struct {
	Host               string  `json:"host"`
	Port               int     `json:"port"`
	AuthToken          string  `json:"auth_token"`
	ReadTimeoutSec     int     `json:"readTimeoutSec"`
	WriteTimeoutSec    int     `json:"writeTimeoutSec"`
	IdleTimeoutSec     int     `json:"idleTimeoutSec"`
	RateLimitPerSecond float64 `json:"rateLimitPerSecond"`
	RateLimitBurst     int     `json:"rateLimitBurst"`
	RelayTimeoutSec    int     `json:"relayTimeoutSec"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
	// EncryptAPIKey stores aiApiKey sealed with a key derived from WAE_ENCRYPTION_SECRET.
	EncryptAPIKey bool `json:"encryptApiKey"`
}

type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type AIConfig struct {
	BaseURL            string `json:"base_url"`
	DefaultModel       string `json:"defaultModel"`
	TimeoutSec         int    `json:"timeoutSec"`
	BreakerMaxFailures int    `json:"breakerMaxFailures"`
	BreakerTimeoutSec  int    `json:"breakerTimeoutSec"`
}

type SchedulerConfig struct {
	SweepIntervalSec  int `json:"sweepIntervalSec"`
	BackupIntervalMin int `json:"backupIntervalMin"`
}

type MonitorConfig struct {
	BackendURL         string   `json:"backend_url"`
	PageURL            string   `json:"page_url"`
	ControlURL         string   `json:"control_url"`
	BrowserBin         string   `json:"browser_bin"`
	UserDataDir        string   `json:"user_data_dir"`
	Headless           bool     `json:"headless"`
	WaitIntervalMs     int      `json:"waitIntervalMs"`
	WaitMaxAttempts    int      `json:"waitMaxAttempts"`
	StatusSettleMs     int      `json:"statusSettleMs"`
	ToastDurationMs    int      `json:"toastDurationMs"`
	ObserverPollMs     int      `json:"observerPollMs"`
	PreviewLength      int      `json:"previewLength"`
	PresenceMarkers    []string `json:"presenceMarkers"`
	ReadReceiptMarkers []string `json:"readReceiptMarkers"`
	MetricsListen      string   `json:"metricsListen"`
	// DownloadDir receives status media saved by the downloadStatus command.
	DownloadDir        string   `json:"download_dir"`
}

type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
