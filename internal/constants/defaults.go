package constants

// Background service defaults
const (
	DefaultServerHost            = "127.0.0.1"
	DefaultServerPort            = 8765
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultRateLimitPerSecond    = 10
	DefaultRateLimitBurst        = 20
	DefaultDatabasePath          = "waenhancer.db"
	DefaultBackoffInitialMs      = 500
	DefaultBackoffMaxSec         = 5
	DefaultDatabaseRetryAttempts = 3
)

// Scheduler
const (
	DefaultSweepIntervalSec  = 60
	DefaultBackupIntervalMin = 60
)

// AI backend
const (
	DefaultAIBaseURL          = "https://generativelanguage.googleapis.com"
	DefaultAIModel            = "gemini-pro"
	DefaultAITimeoutSec       = 30
	DefaultBreakerMaxFailures = 5
	DefaultBreakerTimeoutSec  = 60
	MaxAIResponseBytes        = 1 << 20
	MaxProtocolMessageBytes   = 1 << 20
	DefaultRelayTimeoutSec    = 10
)

// Page monitor
const (
	DefaultPageURL             = "https://web.whatsapp.com/"
	DefaultBackendURL          = "ws://127.0.0.1:8765/ws"
	DefaultWaitIntervalMs      = 300
	DefaultWaitMaxAttempts     = 100
	DefaultStatusSettleMs      = 1000
	DefaultToastDurationMs     = 3000
	DefaultObserverPollMs      = 500
	DefaultPreviewLength       = 30
	DefaultStatusIntervalHours = 12
	MaxStatusIntervalHours     = 24
	DefaultReconnectAttempts   = 10
	DefaultReconnectInitialMs  = 1000
	DefaultReconnectMaxSec     = 30
	DefaultUnknownSender       = "Unknown"
	DefaultDownloadDir         = "status-downloads"
	DefaultDownloadTimeoutSec  = 60
	MaxStatusDownloadBytes     = 100 << 20
	MaxInboundTracked          = 500
)

// Host page markers
const (
	DefaultPresenceMarker    = "presence"
	DefaultReadReceiptMarker = "/read"
)

// Host page selectors
const (
	SelectorAppRoot          = ".app-wrapper-web"
	SelectorMessageID        = "[data-id]"
	AttrMessageID            = "data-id"
	SelectorMessageContainer = ".message-in, .message-out"
	SelectorInboundMessage   = ".message-in"
	SelectorCopyableText     = ".copyable-text"
	AttrPrePlainText         = "data-pre-plain-text"
	SelectorStatusButton     = `div[title="Status"]`
	SelectorEditable         = `div[contenteditable="true"]`
	SelectorButton           = "button"
	SelectorComposeBox       = `footer div[contenteditable="true"]`
	SelectorSendButton       = `button[aria-label="Send"]`
	SelectorStatusContainer  = `div[data-animate-status-viewer="true"] div[data-testid="status-container"]`
	StatusPlaceholderPattern = "click to"
)

// DefaultStatusMessages are seeded on first run.
var DefaultStatusMessages = []string{
	"Working hard or hardly working?",
	"Available for chat!",
	"Busy day ahead",
	"Taking some time off",
}

// StatusConfirmLabels are matched against button text, in order.
var StatusConfirmLabels = []string{"Save", "Update"}

// StatusReactionEmojis is the set offered on a status item.
var StatusReactionEmojis = []string{"❤️", "😍", "😮", "😂", "😢", "🙏"}

// Privacy settings
const (
	DefaultMessageIDVisible = 8
	DefaultAPIKeyVisible    = 4
)

// Limits
const (
	MaxMessageIDLength  = 256
	MaxMessageTextBytes = 64 * 1024
	MaxTriggerLength    = 512
	MaxAutoReplyRules   = 200
	MaxStatusMessages   = 100
)
