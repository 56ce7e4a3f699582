package features

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"waenhancer/internal/models"
)

const envPrefix = "WAE_FEATURE_"

// LoadFromEnvironment applies WAE_FEATURE_<NAME>=true/false overrides, where NAME is
// the feature name in any case (WAE_FEATURE_INVISIBLEMODE=true).
func (fm *FlagManager) LoadFromEnvironment() map[string]bool {
	applied := make(map[string]bool)

	fm.mu.Lock()
	defer fm.mu.Unlock()

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, envPrefix) {
			continue
		}
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			continue
		}
		name := strings.TrimPrefix(key, envPrefix)
		for _, def := range DefaultFlags {
			if !strings.EqualFold(def.Name, name) {
				continue
			}
			flag, exists := fm.flags[def.Name]
			if !exists {
				flag = &Flag{Name: def.Name, Description: def.Description, SettingKey: def.SettingKey}
				fm.flags[def.Name] = flag
			}
			flag.Enabled = enabled
			flag.UpdatedAt = time.Now()
			applied[def.Name] = enabled
		}
	}
	return applied
}

// SettingPatch builds the saveSettings patch that persists a toggle. autoStatus is a
// nested object, so the current settings supply its other fields.
func SettingPatch(name string, enabled bool, current *models.Settings) (map[string]json.RawMessage, error) {
	def, ok := definition(name)
	if !ok {
		return nil, ErrFlagNotFound{Name: name}
	}

	var value any = enabled
	if def.SettingKey == models.SettingAutoStatus {
		status := models.DefaultSettings().AutoStatus
		if current != nil {
			status = current.AutoStatus
		}
		status.Enabled = enabled
		value = status
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", def.SettingKey, err)
	}
	return map[string]json.RawMessage{def.SettingKey: raw}, nil
}
