package privacy

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"waenhancer/internal/constants"
)

// MaskChatID masks a chat ID to show structure but hide sensitive parts
// Example: "1234567890@c.us" -> "******7890@c.us"
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}
	if at := strings.Index(chatID, "@"); at >= 0 {
		return maskString(chatID[:at], 4) + chatID[at:]
	}
	return maskString(chatID, 4)
}

// MaskMessageID masks a host message id of the form "true_chat@domain_serial".
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}
	parts := strings.SplitN(messageID, "_", 3)
	if len(parts) == 3 {
		return parts[0] + "_" + MaskChatID(parts[1]) + "_" + maskString(parts[2], 4)
	}
	return maskString(messageID, constants.DefaultMessageIDVisible/2)
}

// MaskAPIKey keeps only the last few characters of a secret.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	return maskString(key, constants.DefaultAPIKeyVisible)
}

// Preview truncates text to at most n runes, adding "..." when cut.
func Preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}

// MaskText hides message content in logs, leaving only its length.
func MaskText(text string) string {
	if text == "" {
		return ""
	}
	return "[" + strconv.Itoa(utf8.RuneCountInString(text)) + " chars]"
}

// MaskURL drops the query and fragment, which may carry session tokens.
func MaskURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i] + "?..."
	}
	return raw
}

func maskString(s string, visible int) string {
	n := len(s)
	if n <= visible {
		return strings.Repeat("*", n)
	}
	return strings.Repeat("*", n-visible) + s[n-visible:]
}
