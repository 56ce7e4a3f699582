package service

// Standard field names for service logging. Use these exact names so log queries work
// across the background and monitor processes.
const (
	LogFieldRequestID = "request_id"
	LogFieldMessageID = "message_id"
	LogFieldChatID    = "chat_id"
	LogFieldStatusID  = "status_id"

	LogFieldComponent = "component"
	LogFieldOperation = "operation"
	LogFieldType      = "type"
	LogFieldCommand   = "command"
	LogFieldFeature   = "feature"

	LogFieldCount    = "count"
	LogFieldDuration = "duration_ms"
	LogFieldModel    = "model"
	LogFieldPreview  = "preview"

	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)

// Level usage:
//
// DEBUG: per-message flow (requests handled, rules evaluated, empty sweeps).
// INFO: lifecycle and state changes (service started, settings saved, monitor connected).
// WARN: a feature could not do its job but the process continues (no monitor to relay to,
// generation failed, element never appeared).
// ERROR: storage failures and anything that loses data.
//
// Message patterns: "Starting [operation]", "Failed to [operation]", "Skipping [operation]: [reason]".
