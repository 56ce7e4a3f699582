package models

import (
	"encoding/json"
	"fmt"
)

// LegacyExport is a dump of the browser extension's chrome.storage areas.
type LegacyExport struct {
	Sync  map[string]json.RawMessage `json:"sync"`
	Local LegacyLocal                `json:"local"`
}

type LegacyLocal struct {
	DeletedMessages   map[string]CapturedMessage `json:"deletedMessages"`
	ScheduledMessages []json.RawMessage          `json:"scheduledMessages"`
	StatusReactions   map[string]string          `json:"statusReactions"`
}

type legacyAutoStatus struct {
	UpdateInterval *int      `json:"updateInterval"`
	StatusMessages *[]string `json:"statusMessages"`
}

type legacyAutoReplies struct {
	Enabled *bool           `json:"enabled"`
	Rules   []AutoReplyRule `json:"rules"`
}

// LegacySyncToPatch converts the extension's sync keys into a settings patch.
// Keys that already use the current names pass through.
func LegacySyncToPatch(sync map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	patch := make(map[string]json.RawMessage)
	rename := map[string]string{
		"antiDelete":    SettingAntiDelete,
		"invisibleMode": SettingInvisibleMode,
		"aiIntegration": SettingAIIntegration,
		"geminiApiKey":  SettingAIAPIKey,
	}
	for k, v := range sync {
		switch {
		case IsSettingKey(k) && k != SettingAutoStatus:
			patch[k] = v
		case rename[k] != "":
			patch[rename[k]] = v
		case k == "autoStatus":
			status, err := convertLegacyStatus(v)
			if err != nil {
				return nil, err
			}
			patch[SettingAutoStatus] = status
		case k == "autoReplies":
			var ar legacyAutoReplies
			if err := json.Unmarshal(v, &ar); err != nil {
				return nil, fmt.Errorf("autoReplies: %w", err)
			}
			if ar.Enabled != nil {
				patch[SettingAutoReply], _ = json.Marshal(*ar.Enabled)
			}
			if ar.Rules != nil {
				patch[SettingAutoReplyRules], _ = json.Marshal(ar.Rules)
			}
		}
	}
	return patch, nil
}

func convertLegacyStatus(raw json.RawMessage) (json.RawMessage, error) {
	var cur AutoStatus
	if err := json.Unmarshal(raw, &cur); err != nil {
		return nil, fmt.Errorf("autoStatus: %w", err)
	}
	var old legacyAutoStatus
	if err := json.Unmarshal(raw, &old); err != nil {
		return nil, fmt.Errorf("autoStatus: %w", err)
	}
	if old.UpdateInterval != nil && cur.UpdateIntervalHours == 0 {
		cur.UpdateIntervalHours = *old.UpdateInterval
	}
	if old.StatusMessages != nil && cur.Messages == nil {
		cur.Messages = *old.StatusMessages
	}
	return json.Marshal(cur)
}
