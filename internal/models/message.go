package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// TimestampLayout matches JavaScript's Date.prototype.toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CapturedMessage is a chat message recovered after the host page removed it.
type CapturedMessage struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	ChatID    string `json:"chatId,omitempty"`
}

// ScheduledMessage is a deferred send. Payload is opaque to the background process.
type ScheduledMessage struct {
	ID            int64           `json:"id,omitempty"`
	ScheduledTime int64           `json:"scheduledTime"`
	Payload       json.RawMessage `json:"payload"`
}

// Due reports whether the message should be dispatched at now.
func (m *ScheduledMessage) Due(now time.Time) bool {
	return m.ScheduledTime <= now.UnixMilli()
}

// TextPayload is the payload shape the monitor knows how to deliver.
type TextPayload struct {
	Text   string `json:"text"`
	ChatID string `json:"chatId,omitempty"`
}

// DecodeText extracts a TextPayload. ok is false for any other payload shape.
func (m *ScheduledMessage) DecodeText() (TextPayload, bool) {
	var p TextPayload
	if len(m.Payload) == 0 {
		return p, false
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil || p.Text == "" {
		return TextPayload{}, false
	}
	return p, true
}

// ReactionRecord is the emoji chosen for a status item.
type ReactionRecord struct {
	StatusID string `json:"statusId"`
	Emoji    string `json:"emoji"`
}

// DefaultStatusID is used when a reaction arrives without a status id.
func DefaultStatusID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}
