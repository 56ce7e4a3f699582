package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"waenhancer/internal/constants"
	"waenhancer/internal/errors"
	"waenhancer/internal/models"
)

// ValidateMessageID validates message ID format and length
func ValidateMessageID(messageID string) error {
	if messageID == "" {
		return errors.NewValidationError("messageId", messageID, "message ID cannot be empty")
	}
	if len(messageID) > constants.MaxMessageIDLength {
		return errors.NewValidationError("messageId", messageID[:32],
			fmt.Sprintf("message ID too long (max %d characters)", constants.MaxMessageIDLength))
	}
	if strings.ContainsAny(messageID, "\x00\n\r\t") {
		return errors.NewValidationError("messageId", messageID, "message ID contains invalid characters")
	}
	return nil
}

// ValidateCapturedMessage checks a message before it enters the deleted-message log.
func ValidateCapturedMessage(msg *models.CapturedMessage) error {
	if msg == nil {
		return errors.NewValidationError("message", "", "message is required")
	}
	if err := ValidateMessageID(msg.ID); err != nil {
		return err
	}
	if strings.TrimSpace(msg.Text) == "" {
		return errors.NewValidationError("text", "", "text cannot be empty")
	}
	if len(msg.Text) > constants.MaxMessageTextBytes {
		return errors.NewValidationError("text", "", "text too long")
	}
	if !utf8.ValidString(msg.Text) {
		return errors.NewValidationError("text", "", "text is not valid UTF-8")
	}
	return nil
}

// ValidateScheduledMessage checks a schedule request.
func ValidateScheduledMessage(msg *models.ScheduledMessage) error {
	if msg == nil {
		return errors.NewValidationError("data", "", "scheduled message is required")
	}
	if msg.ScheduledTime <= 0 {
		return errors.NewValidationError("scheduledTime", fmt.Sprint(msg.ScheduledTime),
			"scheduledTime must be a positive epoch-millis value")
	}
	if len(msg.Payload) > constants.MaxMessageTextBytes {
		return errors.NewValidationError("payload", "", "payload too large")
	}
	return nil
}

// ValidateSettings checks a fully merged settings value before it is stored.
func ValidateSettings(s *models.Settings) error {
	if s.AutoStatus.UpdateIntervalHours < 0 {
		return errors.NewValidationError("autoStatus.updateIntervalHours",
			fmt.Sprint(s.AutoStatus.UpdateIntervalHours), "interval must be a positive number of hours")
	}
	if len(s.AutoStatus.Messages) > constants.MaxStatusMessages {
		return errors.NewValidationError("autoStatus.messages", "",
			fmt.Sprintf("at most %d status messages", constants.MaxStatusMessages))
	}
	if len(s.AutoReplyRules) > constants.MaxAutoReplyRules {
		return errors.NewValidationError("autoReplyRules", "",
			fmt.Sprintf("at most %d rules", constants.MaxAutoReplyRules))
	}
	for i, r := range s.AutoReplyRules {
		if len(r.Trigger) > constants.MaxTriggerLength {
			return errors.NewValidationError(fmt.Sprintf("autoReplyRules[%d].trigger", i), "",
				"trigger too long")
		}
	}
	if strings.ContainsAny(s.AIModel, "/?#& ") {
		return errors.NewValidationError("aiModel", s.AIModel, "model name contains invalid characters")
	}
	return nil
}

// ValidateReaction checks a status reaction.
func ValidateReaction(r *models.ReactionRecord) error {
	if r.Emoji == "" {
		return errors.NewValidationError("emoji", "", "emoji cannot be empty")
	}
	for _, e := range constants.StatusReactionEmojis {
		if e == r.Emoji {
			return nil
		}
	}
	return errors.NewValidationError("emoji", r.Emoji, "unsupported reaction")
}

// ValidateStringLength validates string length within bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	n := utf8.RuneCountInString(value)
	if n < minLength {
		return errors.NewValidationError(fieldName, value,
			fmt.Sprintf("must be at least %d characters", minLength))
	}
	if n > maxLength {
		return errors.NewValidationError(fieldName, "",
			fmt.Sprintf("must be at most %d characters", maxLength))
	}
	return nil
}

// ValidateNumericRange validates numeric values within bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min || value > max {
		return errors.NewValidationError(fieldName, fmt.Sprint(value),
			fmt.Sprintf("must be between %d and %d", min, max))
	}
	return nil
}
