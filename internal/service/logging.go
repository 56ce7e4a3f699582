package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"waenhancer/internal/privacy"
	"waenhancer/internal/tracing"
)

// ContextKey is a package-local type to prevent context key collisions.
type ContextKey string

// VerboseContextKey enables unmasked message content in logs.
const VerboseContextKey ContextKey = "verbose"

func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// LogWithContext returns an entry carrying the request id of ctx, if any.
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	entry := logrus.NewEntry(logger)
	if id := tracing.GetRequestID(ctx); id != "" {
		entry = entry.WithField(LogFieldRequestID, id)
	}
	return entry
}

// MessageFields describes a chat message for logging. Ids and text are masked unless
// verbose logging is on for ctx.
func MessageFields(ctx context.Context, messageID, chatID, text string) logrus.Fields {
	if IsVerboseLogging(ctx) {
		return logrus.Fields{
			LogFieldMessageID: messageID,
			LogFieldChatID:    chatID,
			LogFieldPreview:   text,
		}
	}
	return logrus.Fields{
		LogFieldMessageID: privacy.MaskMessageID(messageID),
		LogFieldChatID:    privacy.MaskChatID(chatID),
		LogFieldPreview:   privacy.MaskText(text),
	}
}
