package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"waenhancer/internal/database"
	"waenhancer/internal/models"
	"waenhancer/internal/validation"
)

// Importer is the part of the store the import writes to.
type Importer interface {
	SaveSettings(ctx context.Context, patch map[string]json.RawMessage) (*models.Settings, []string, error)
	LogDeletedMessage(ctx context.Context, msg *models.CapturedMessage) (bool, error)
	EnqueueScheduledMessage(ctx context.Context, msg *models.ScheduledMessage) error
	SaveReaction(ctx context.Context, r models.ReactionRecord) error
}

// Summary counts what an import wrote.
type Summary struct {
	SettingsKeys int
	Deleted      int
	Duplicates   int
	Scheduled    int
	Skipped      int
	Reactions    int
}

func main() {
	dbPath := flag.String("db", "./waenhancer.db", "Path to the database file")
	input := flag.String("input", "", "Path to the extension storage export (JSON)")
	encrypt := flag.Bool("encrypt-api-key", false, "Seal the imported AI key with WAE_ENCRYPTION_SECRET")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if *input == "" {
		logger.Fatal("-input is required")
	}

	raw, err := os.ReadFile(*input)
	if err != nil {
		logger.Fatalf("Failed to read export: %v", err)
	}
	var export models.LegacyExport
	if err := json.Unmarshal(raw, &export); err != nil {
		logger.Fatalf("Failed to parse export: %v", err)
	}

	db, err := database.New(*dbPath, database.WithAPIKeyEncryption(*encrypt))
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	summary, err := importExport(context.Background(), db, &export, logger)
	if err != nil {
		logger.Fatalf("Import failed: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"settings":   summary.SettingsKeys,
		"deleted":    summary.Deleted,
		"duplicates": summary.Duplicates,
		"scheduled":  summary.Scheduled,
		"skipped":    summary.Skipped,
		"reactions":  summary.Reactions,
	}).Info("Import completed")
	fmt.Println("Legacy storage imported. You can now start waenhancer.")
}

func importExport(ctx context.Context, store Importer, export *models.LegacyExport, logger *logrus.Logger) (Summary, error) {
	var s Summary

	patch, err := models.LegacySyncToPatch(export.Sync)
	if err != nil {
		return s, fmt.Errorf("convert settings: %w", err)
	}
	if len(patch) > 0 {
		_, ignored, err := store.SaveSettings(ctx, patch)
		if err != nil {
			return s, fmt.Errorf("save settings: %w", err)
		}
		if len(ignored) > 0 {
			logger.WithField("keys", ignored).Warn("Ignored unknown settings keys")
		}
		s.SettingsKeys = len(patch) - len(ignored)
	}

	for id, msg := range export.Local.DeletedMessages {
		msg := msg
		if msg.ID == "" {
			msg.ID = id
		}
		inserted, err := store.LogDeletedMessage(ctx, &msg)
		if err != nil {
			return s, fmt.Errorf("import deleted message %s: %w", id, err)
		}
		if inserted {
			s.Deleted++
		} else {
			s.Duplicates++
		}
	}

	for i, raw := range export.Local.ScheduledMessages {
		var head struct {
			ScheduledTime int64 `json:"scheduledTime"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			logger.WithError(err).WithField("index", i).Warn("Skipping unreadable scheduled message")
			s.Skipped++
			continue
		}
		msg := &models.ScheduledMessage{ScheduledTime: head.ScheduledTime, Payload: raw}
		if err := validation.ValidateScheduledMessage(msg); err != nil {
			logger.WithError(err).WithField("index", i).Warn("Skipping invalid scheduled message")
			s.Skipped++
			continue
		}
		if err := store.EnqueueScheduledMessage(ctx, msg); err != nil {
			return s, fmt.Errorf("import scheduled message %d: %w", i, err)
		}
		s.Scheduled++
	}

	for statusID, emoji := range export.Local.StatusReactions {
		if err := store.SaveReaction(ctx, models.ReactionRecord{StatusID: statusID, Emoji: emoji}); err != nil {
			return s, fmt.Errorf("import reaction %s: %w", statusID, err)
		}
		s.Reactions++
	}

	return s, nil
}
