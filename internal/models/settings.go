package models

import (
	"encoding/json"
	"sort"

	"waenhancer/internal/constants"
)

// Settings is the user-editable configuration shared by the monitor and the popup.
// Each top-level JSON key is stored and overwritten independently.
type Settings struct {
	AntiDeleteEnabled      bool            `json:"antiDeleteEnabled"`
	InvisibleModeEnabled   bool            `json:"invisibleModeEnabled"`
	AIIntegrationEnabled   bool            `json:"aiIntegrationEnabled"`
	AIAPIKey               string          `json:"aiApiKey"`
	AIModel                string          `json:"aiModel"`
	AutoStatus             AutoStatus      `json:"autoStatus"`
	AutoReplyEnabled       bool            `json:"autoReplyEnabled"`
	AutoReplyRules         []AutoReplyRule `json:"autoReplyRules"`
	StatusReactionsEnabled bool            `json:"statusReactionsEnabled"`
}

type AutoStatus struct {
	Enabled             bool     `json:"enabled"`
	UpdateIntervalHours int      `json:"updateIntervalHours"`
	Messages            []string `json:"messages"`
}

type AutoReplyRule struct {
	Trigger  string `json:"trigger"`
	Response string `json:"response"`
}

// Setting keys as stored.
const (
	SettingAntiDelete      = "antiDeleteEnabled"
	SettingInvisibleMode   = "invisibleModeEnabled"
	SettingAIIntegration   = "aiIntegrationEnabled"
	SettingAIAPIKey        = "aiApiKey"
	SettingAIModel         = "aiModel"
	SettingAutoStatus      = "autoStatus"
	SettingAutoReply       = "autoReplyEnabled"
	SettingAutoReplyRules  = "autoReplyRules"
	SettingStatusReactions = "statusReactionsEnabled"
)

var settingKeys = map[string]struct{}{
	SettingAntiDelete:      {},
	SettingInvisibleMode:   {},
	SettingAIIntegration:   {},
	SettingAIAPIKey:        {},
	SettingAIModel:         {},
	SettingAutoStatus:      {},
	SettingAutoReply:       {},
	SettingAutoReplyRules:  {},
	SettingStatusReactions: {},
}

// IsSettingKey reports whether key names a stored setting.
func IsSettingKey(key string) bool {
	_, ok := settingKeys[key]
	return ok
}

// SettingKeys returns every stored setting key, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultSettings returns the first-install configuration.
func DefaultSettings() *Settings {
	messages := make([]string, len(constants.DefaultStatusMessages))
	copy(messages, constants.DefaultStatusMessages)
	return &Settings{
		AntiDeleteEnabled:    true,
		InvisibleModeEnabled: false,
		AIIntegrationEnabled: true,
		AIModel:              constants.DefaultAIModel,
		AutoStatus: AutoStatus{
			Enabled:             false,
			UpdateIntervalHours: constants.DefaultStatusIntervalHours,
			Messages:            messages,
		},
		AutoReplyEnabled:       true,
		AutoReplyRules:         []AutoReplyRule{},
		StatusReactionsEnabled: true,
	}
}

// Normalize applies defaults to unset fields and caps the status interval.
func (s *Settings) Normalize() {
	if s.AIModel == "" {
		s.AIModel = constants.DefaultAIModel
	}
	if s.AutoStatus.UpdateIntervalHours <= 0 {
		s.AutoStatus.UpdateIntervalHours = constants.DefaultStatusIntervalHours
	}
	if s.AutoStatus.UpdateIntervalHours > constants.MaxStatusIntervalHours {
		s.AutoStatus.UpdateIntervalHours = constants.MaxStatusIntervalHours
	}
	if s.AutoStatus.Messages == nil {
		s.AutoStatus.Messages = []string{}
	}
	if s.AutoReplyRules == nil {
		s.AutoReplyRules = []AutoReplyRule{}
	}
}

// ApplyPatch overlays the keys present in patch onto s. Unknown keys are ignored
// and returned so callers can log them.
func (s *Settings) ApplyPatch(patch map[string]json.RawMessage) (ignored []string, err error) {
	known := make(map[string]json.RawMessage, len(patch))
	for k, v := range patch {
		if !IsSettingKey(k) {
			ignored = append(ignored, k)
			continue
		}
		known[k] = v
	}
	sort.Strings(ignored)
	if len(known) == 0 {
		return ignored, nil
	}
	obj, err := json.Marshal(known)
	if err != nil {
		return ignored, err
	}
	if err := json.Unmarshal(obj, s); err != nil {
		return ignored, err
	}
	return ignored, nil
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.AutoStatus.Messages = append([]string(nil), s.AutoStatus.Messages...)
	c.AutoReplyRules = append([]AutoReplyRule(nil), s.AutoReplyRules...)
	return &c
}
