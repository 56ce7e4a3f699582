package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"waenhancer/internal/errors"
	"waenhancer/internal/models"
)

// LogDeletedMessage stores msg keyed by id. A message already in the log is left
// untouched; created reports whether a new entry was written.
func (d *Database) LogDeletedMessage(ctx context.Context, msg *models.CapturedMessage) (bool, error) {
	var created bool
	var chatID *string
	if msg.ChatID != "" {
		chatID = &msg.ChatID
	}

	err := retryableDBOperationNoReturn(ctx, func() error {
		res, err := d.db.ExecContext(ctx, `
			INSERT INTO deleted_messages (id, text, sender, timestamp, chat_id, captured_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, msg.ID, msg.Text, msg.Sender, msg.Timestamp, chatID, d.now().UnixMilli())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n > 0
		return nil
	}, "log deleted message")
	if err != nil {
		return false, errors.NewStorageError("log deleted message", err)
	}
	return created, nil
}

// GetDeletedMessages returns the whole deleted-message log keyed by id.
func (d *Database) GetDeletedMessages(ctx context.Context) (map[string]models.CapturedMessage, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, text, sender, timestamp, chat_id
		FROM deleted_messages
		ORDER BY captured_at
	`)
	if err != nil {
		return nil, errors.NewStorageError("read deleted messages", err)
	}
	defer rows.Close()

	out := make(map[string]models.CapturedMessage)
	for rows.Next() {
		var m models.CapturedMessage
		var chatID sql.NullString
		if err := rows.Scan(&m.ID, &m.Text, &m.Sender, &m.Timestamp, &chatID); err != nil {
			return nil, errors.NewStorageError("scan deleted message", err)
		}
		m.ChatID = chatID.String
		out[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("read deleted messages", err)
	}
	return out, nil
}

// ClearDeletedMessages empties the log and returns how many entries were removed.
func (d *Database) ClearDeletedMessages(ctx context.Context) (int64, error) {
	var n int64
	err := retryableDBOperationNoReturn(ctx, func() error {
		res, err := d.db.ExecContext(ctx, `DELETE FROM deleted_messages`)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	}, "clear deleted messages")
	if err != nil {
		return 0, errors.NewStorageError("clear deleted messages", err)
	}
	return n, nil
}

// EnqueueScheduledMessage adds msg to the queue and sets its id.
func (d *Database) EnqueueScheduledMessage(ctx context.Context, msg *models.ScheduledMessage) error {
	payload := string(msg.Payload)
	if payload == "" {
		payload = "null"
	}
	err := retryableDBOperationNoReturn(ctx, func() error {
		res, err := d.db.ExecContext(ctx, `
			INSERT INTO scheduled_messages (scheduled_time, payload, created_at) VALUES (?, ?, ?)
		`, msg.ScheduledTime, payload, d.now().UnixMilli())
		if err != nil {
			return err
		}
		msg.ID, err = res.LastInsertId()
		return err
	}, "enqueue scheduled message")
	if err != nil {
		return errors.NewStorageError("enqueue scheduled message", err)
	}
	return nil
}

// TakeDueScheduledMessages removes every item due at now and returns them. Removal
// happens before the caller attempts delivery, so each item is handed out at most once.
func (d *Database) TakeDueScheduledMessages(ctx context.Context, now time.Time) ([]models.ScheduledMessage, error) {
	var due []models.ScheduledMessage
	err := retryableDBOperationNoReturn(ctx, func() error {
		due = due[:0]
		return d.inTx(ctx, func(tx *sql.Tx) error {
			rows, err := tx.QueryContext(ctx, `
				SELECT id, scheduled_time, payload FROM scheduled_messages
				WHERE scheduled_time <= ?
				ORDER BY scheduled_time, id
			`, now.UnixMilli())
			if err != nil {
				return err
			}
			for rows.Next() {
				var m models.ScheduledMessage
				var payload string
				if err := rows.Scan(&m.ID, &m.ScheduledTime, &payload); err != nil {
					rows.Close()
					return err
				}
				m.Payload = []byte(payload)
				due = append(due, m)
			}
			if err := rows.Close(); err != nil {
				return err
			}
			if err := rows.Err(); err != nil {
				return err
			}

			for _, m := range due {
				if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_messages WHERE id = ?`, m.ID); err != nil {
					return fmt.Errorf("failed to remove scheduled message %d: %w", m.ID, err)
				}
			}
			return nil
		})
	}, "take due scheduled messages")
	if err != nil {
		return nil, errors.NewStorageError("take due scheduled messages", err)
	}
	return due, nil
}

// ListScheduledMessages returns the pending queue ordered by due time.
func (d *Database) ListScheduledMessages(ctx context.Context) ([]models.ScheduledMessage, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, scheduled_time, payload FROM scheduled_messages ORDER BY scheduled_time, id
	`)
	if err != nil {
		return nil, errors.NewStorageError("list scheduled messages", err)
	}
	defer rows.Close()

	out := []models.ScheduledMessage{}
	for rows.Next() {
		var m models.ScheduledMessage
		var payload string
		if err := rows.Scan(&m.ID, &m.ScheduledTime, &payload); err != nil {
			return nil, errors.NewStorageError("scan scheduled message", err)
		}
		m.Payload = []byte(payload)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("list scheduled messages", err)
	}
	return out, nil
}

// SaveReaction records the emoji for a status item, replacing any earlier one.
func (d *Database) SaveReaction(ctx context.Context, r models.ReactionRecord) error {
	err := retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO status_reactions (status_id, emoji, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(status_id) DO UPDATE SET emoji = excluded.emoji, updated_at = excluded.updated_at
		`, r.StatusID, r.Emoji, d.now().UnixMilli())
		return err
	}, "save reaction")
	if err != nil {
		return errors.NewStorageError("save reaction", err)
	}
	return nil
}

// GetReactions returns statusId -> emoji.
func (d *Database) GetReactions(ctx context.Context) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT status_id, emoji FROM status_reactions`)
	if err != nil {
		return nil, errors.NewStorageError("read reactions", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, emoji string
		if err := rows.Scan(&id, &emoji); err != nil {
			return nil, errors.NewStorageError("scan reaction", err)
		}
		out[id] = emoji
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("read reactions", err)
	}
	return out, nil
}
