package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"waenhancer/internal/models"
)

const defaultWatchInterval = 5 * time.Second

// ConfigWatcher polls the config file and reloads it when its modification time moves.
type ConfigWatcher struct {
	configPath string
	interval   time.Duration
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
}

func NewConfigWatcher(configPath string, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath: configPath,
		interval:   defaultWatchInterval,
		logger:     logger,
	}
}

// Start loads the file and then watches it until ctx is done.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	config, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()

	stat, err := os.Stat(cw.configPath)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	cw.logger.WithField("path", cw.configPath).Info("Configuration watcher started")

	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Debug("Configuration watcher stopping")
			return nil

		case <-ticker.C:
			stat, err := os.Stat(cw.configPath)
			if err != nil {
				cw.logger.WithError(err).Error("Failed to stat configuration file")
				continue
			}
			if stat.ModTime().After(lastModTime) {
				lastModTime = stat.ModTime()
				cw.reloadConfig()
			}
		}
	}
}

// GetConfig returns the current configuration.
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback run after every successful reload.
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// ApplyLogLevel returns a callback that keeps logger at the configured level.
func ApplyLogLevel(logger *logrus.Logger) func(*models.Config) {
	return func(c *models.Config) {
		level, err := logrus.ParseLevel(c.LogLevel)
		if err != nil {
			return
		}
		if logger.GetLevel() != level {
			logger.SetLevel(level)
			logger.WithField("level", level.String()).Info("Log level changed")
		}
	}
}

func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration")
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded")

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					cw.logger.WithField("panic", r).Error("Config change callback panicked")
				}
			}()
			callback(newConfig)
		}()
	}

	cw.logConfigChanges(oldConfig, newConfig)
}

// logConfigChanges notes changes that only take effect after a restart.
func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}
	if old.Server.Port != new.Server.Port || old.Server.Host != new.Server.Host {
		cw.logger.WithFields(logrus.Fields{
			"old": old.Server.Host,
			"new": new.Server.Host,
		}).Warn("Listen address changed; restart to apply")
	}
	if old.Database.Path != new.Database.Path {
		cw.logger.Warn("Database path changed; restart to apply")
	}
	if old.Scheduler.SweepIntervalSec != new.Scheduler.SweepIntervalSec {
		cw.logger.WithFields(logrus.Fields{
			"old": old.Scheduler.SweepIntervalSec,
			"new": new.Scheduler.SweepIntervalSec,
		}).Info("Sweep interval changed; restart to apply")
	}
}
