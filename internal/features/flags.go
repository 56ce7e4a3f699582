package features

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"waenhancer/internal/models"
)

// Flag is the runtime state of one monitor feature.
type Flag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	SettingKey  string    `json:"settingKey"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FlagManager tracks which monitor features are on.
type FlagManager struct {
	flags map[string]*Flag
	mu    sync.RWMutex
}

func NewFlagManager() *FlagManager {
	return &FlagManager{
		flags: make(map[string]*Flag),
	}
}

// Feature names, as used by toggleFeature commands.
const (
	FlagAntiDelete      = "antiDelete"
	FlagInvisibleMode   = "invisibleMode"
	FlagAutoStatus      = "autoStatus"
	FlagAutoReply       = "autoReply"
	FlagAIAssistant     = "aiAssistant"
	FlagStatusReactions = "statusReactions"
)

// FlagDefinition ties a feature to the setting that persists it.
type FlagDefinition struct {
	Name        string
	Description string
	SettingKey  string
	enabledIn   func(*models.Settings) bool
}

var DefaultFlags = []FlagDefinition{
	{FlagAntiDelete, "Recover messages removed by the host page", models.SettingAntiDelete,
		func(s *models.Settings) bool { return s.AntiDeleteEnabled }},
	{FlagInvisibleMode, "Suppress presence and read receipts", models.SettingInvisibleMode,
		func(s *models.Settings) bool { return s.InvisibleModeEnabled }},
	{FlagAutoStatus, "Rotate the profile status periodically", models.SettingAutoStatus,
		func(s *models.Settings) bool { return s.AutoStatus.Enabled }},
	{FlagAutoReply, "Answer inbound messages matching a rule", models.SettingAutoReply,
		func(s *models.Settings) bool { return s.AutoReplyEnabled }},
	{FlagAIAssistant, "Compose replies with the generative API", models.SettingAIIntegration,
		func(s *models.Settings) bool { return s.AIIntegrationEnabled }},
	{FlagStatusReactions, "Record emoji reactions to status items", models.SettingStatusReactions,
		func(s *models.Settings) bool { return s.StatusReactionsEnabled }},
}

func definition(name string) (FlagDefinition, bool) {
	for _, def := range DefaultFlags {
		if def.Name == name {
			return def, true
		}
	}
	return FlagDefinition{}, false
}

// IsKnown reports whether name is a monitor feature.
func IsKnown(name string) bool {
	_, ok := definition(name)
	return ok
}

// EnabledIn returns the state each feature has in s.
func EnabledIn(s *models.Settings) map[string]bool {
	out := make(map[string]bool, len(DefaultFlags))
	for _, def := range DefaultFlags {
		out[def.Name] = def.enabledIn(s)
	}
	return out
}

// LoadFromSettings sets every flag from the persisted settings.
func (fm *FlagManager) LoadFromSettings(s *models.Settings) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	now := time.Now()
	for _, def := range DefaultFlags {
		fm.flags[def.Name] = &Flag{
			Name:        def.Name,
			Enabled:     def.enabledIn(s),
			Description: def.Description,
			SettingKey:  def.SettingKey,
			UpdatedAt:   now,
		}
	}
}

func (fm *FlagManager) IsEnabled(name string) bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	flag, exists := fm.flags[name]
	if !exists {
		return false
	}
	return flag.Enabled
}

// Set changes a flag and reports whether its value actually changed.
func (fm *FlagManager) Set(name string, enabled bool) (bool, error) {
	def, ok := definition(name)
	if !ok {
		return false, ErrFlagNotFound{Name: name}
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	flag, exists := fm.flags[name]
	if !exists {
		flag = &Flag{Name: name, Description: def.Description, SettingKey: def.SettingKey}
		fm.flags[name] = flag
	} else if flag.Enabled == enabled {
		return false, nil
	}
	flag.Enabled = enabled
	flag.UpdatedAt = time.Now()
	return true, nil
}

// GetFlag returns a copy of the flag.
func (fm *FlagManager) GetFlag(name string) (*Flag, error) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	flag, exists := fm.flags[name]
	if !exists {
		return nil, ErrFlagNotFound{Name: name}
	}
	flagCopy := *flag
	return &flagCopy, nil
}

// ListFlags returns copies of all flags sorted by name.
func (fm *FlagManager) ListFlags() []*Flag {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	result := make([]*Flag, 0, len(fm.flags))
	for _, flag := range fm.flags {
		flagCopy := *flag
		result = append(result, &flagCopy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ExportJSON renders all flags, for status logging.
func (fm *FlagManager) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(fm.ListFlags(), "", "  ")
}

type ErrFlagNotFound struct {
	Name string
}

func (e ErrFlagNotFound) Error() string {
	return "feature not found: " + e.Name
}
