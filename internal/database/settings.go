package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"waenhancer/internal/errors"
	"waenhancer/internal/models"
	"waenhancer/internal/validation"
)

const upsertSettingQuery = `
	INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

// GetSettings returns the stored settings overlaid on the defaults. Keys never
// written keep their default value.
func (d *Database) GetSettings(ctx context.Context) (*models.Settings, error) {
	raw, err := d.loadSettingValues(ctx)
	if err != nil {
		return nil, err
	}

	s := models.DefaultSettings()
	if _, err := s.ApplyPatch(raw); err != nil {
		return nil, errors.NewStorageError("decode settings", err)
	}
	s.Normalize()
	return s, nil
}

// SaveSettings merges patch into the stored settings. Only keys present in patch are
// written; each key is last-write-wins. Returns the merged settings and any keys
// that were ignored because they are not settings.
func (d *Database) SaveSettings(ctx context.Context, patch map[string]json.RawMessage) (*models.Settings, []string, error) {
	d.settingsMu.Lock()
	defer d.settingsMu.Unlock()

	current, err := d.GetSettings(ctx)
	if err != nil {
		return nil, nil, err
	}

	merged := current.Clone()
	ignored, err := merged.ApplyPatch(patch)
	if err != nil {
		return nil, ignored, errors.NewValidationError("settings", "", err.Error())
	}
	if err := validation.ValidateSettings(merged); err != nil {
		return nil, ignored, err
	}
	merged.Normalize()

	values, err := d.encodeSettingValues(merged, patch)
	if err != nil {
		return nil, ignored, err
	}
	if err := d.writeSettingValues(ctx, values); err != nil {
		return nil, ignored, err
	}
	return merged, ignored, nil
}

// SeedDefaults writes the default settings when the partition is empty.
// It reports whether anything was written.
func (d *Database) SeedDefaults(ctx context.Context) (bool, error) {
	d.settingsMu.Lock()
	defer d.settingsMu.Unlock()

	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings`).Scan(&count); err != nil {
		return false, errors.NewStorageError("count settings", err)
	}
	if count > 0 {
		return false, nil
	}

	defaults := models.DefaultSettings()
	all := make(map[string]json.RawMessage)
	for _, k := range models.SettingKeys() {
		all[k] = nil
	}
	values, err := d.encodeSettingValues(defaults, all)
	if err != nil {
		return false, err
	}
	if err := d.writeSettingValues(ctx, values); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Database) loadSettingValues(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, errors.NewStorageError("read settings", err)
	}
	defer rows.Close()

	raw := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.NewStorageError("scan settings", err)
		}
		if key == models.SettingAIAPIKey {
			opened, err := d.openAPIKey(value)
			if err != nil {
				return nil, err
			}
			value = opened
		}
		raw[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("read settings", err)
	}
	return raw, nil
}

// encodeSettingValues marshals the fields of s named by the keys of patch.
func (d *Database) encodeSettingValues(s *models.Settings, patch map[string]json.RawMessage) (map[string]string, error) {
	encoded, err := json.Marshal(s)
	if err != nil {
		return nil, errors.NewStorageError("encode settings", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, errors.NewStorageError("encode settings", err)
	}

	values := make(map[string]string)
	for key := range patch {
		if !models.IsSettingKey(key) {
			continue
		}
		value := string(fields[key])
		if key == models.SettingAIAPIKey {
			sealed, err := d.sealer.Seal(s.AIAPIKey)
			if err != nil {
				return nil, errors.NewStorageError("seal api key", err)
			}
			b, _ := json.Marshal(sealed)
			value = string(b)
		}
		values[key] = value
	}
	return values, nil
}

func (d *Database) writeSettingValues(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := d.now().UnixMilli()
	return retryableDBOperationNoReturn(ctx, func() error {
		return d.inTx(ctx, func(tx *sql.Tx) error {
			for key, value := range values {
				if _, err := tx.ExecContext(ctx, upsertSettingQuery, key, value, now); err != nil {
					return fmt.Errorf("failed to save setting %s: %w", key, err)
				}
			}
			return nil
		})
	}, "save settings")
}

func (d *Database) openAPIKey(stored string) (string, error) {
	var sealed string
	if err := json.Unmarshal([]byte(stored), &sealed); err != nil {
		return "", errors.NewStorageError("decode api key", err)
	}
	plain, err := d.sealer.Open(sealed)
	if err != nil {
		return "", errors.NewStorageError("open api key", err)
	}
	b, _ := json.Marshal(plain)
	return string(b), nil
}

func (d *Database) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback error: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
