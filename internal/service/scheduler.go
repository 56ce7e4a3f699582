package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"waenhancer/internal/constants"
	"waenhancer/internal/errors"
	"waenhancer/internal/metrics"
	"waenhancer/internal/models"
	"waenhancer/pkg/protocol"
)

// DueTaker removes and returns every scheduled message due at now.
type DueTaker interface {
	TakeDueScheduledMessages(ctx context.Context, now time.Time) ([]models.ScheduledMessage, error)
}

// Scheduler sweeps the scheduled-message queue and triggers periodic chat backups.
// Delivery is at-most-once: an item is removed from the queue before it is relayed.
type Scheduler struct {
	store          DueTaker
	relay          CommandRelay
	sweepInterval  time.Duration
	backupInterval time.Duration
	now            func() time.Time
	logger         *logrus.Logger
	errLog         *errors.Logger
	stopCh         chan struct{}
	stopOnce       sync.Once
}

func NewScheduler(store DueTaker, relay CommandRelay, cfg models.SchedulerConfig, logger *logrus.Logger) *Scheduler {
	sweep := time.Duration(cfg.SweepIntervalSec) * time.Second
	if sweep <= 0 {
		sweep = constants.DefaultSweepIntervalSec * time.Second
	}
	backup := time.Duration(cfg.BackupIntervalMin) * time.Minute
	if backup <= 0 {
		backup = constants.DefaultBackupIntervalMin * time.Minute
	}
	return &Scheduler{
		store:          store,
		relay:          relay,
		sweepInterval:  sweep,
		backupInterval: backup,
		now:            time.Now,
		logger:         logger,
		errLog:         errors.NewLogger(logger),
		stopCh:         make(chan struct{}),
	}
}

// Start sweeps once and then on every tick until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	sweepTicker := time.NewTicker(s.sweepInterval)
	defer sweepTicker.Stop()
	backupTicker := time.NewTicker(s.backupInterval)
	defer backupTicker.Stop()

	s.logger.WithFields(logrus.Fields{
		"sweep_interval":  s.sweepInterval,
		"backup_interval": s.backupInterval,
	}).Info("Starting scheduler")

	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped due to context cancellation")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stopped")
			return
		case <-sweepTicker.C:
			s.Sweep(ctx)
		case <-backupTicker.C:
			s.requestBackup(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Sweep takes every due item off the queue and relays each as a sendScheduledMessage
// command. It returns how many items were relayed. Items whose relay fails are dropped.
func (s *Scheduler) Sweep(ctx context.Context) int {
	due, err := s.store.TakeDueScheduledMessages(ctx, s.now())
	if err != nil {
		s.errLog.LogError(err, "Failed to take due scheduled messages")
		return 0
	}
	if len(due) == 0 {
		s.logger.Debug("No scheduled messages due")
		return 0
	}

	relayed := 0
	for i := range due {
		msg := due[i]
		cmd := &protocol.Command{Type: protocol.CmdSendScheduledMessage, Message: &msg}
		if err := s.relay.Send(ctx, cmd); err != nil {
			metrics.ScheduledDispatches.WithLabelValues("dropped").Inc()
			s.errLog.LogWarn(err, "Dropped scheduled message", logrus.Fields{"scheduled_id": msg.ID})
			continue
		}
		metrics.ScheduledDispatches.WithLabelValues("relayed").Inc()
		relayed++
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldCount: len(due),
		"relayed":     relayed,
	}).Info("Completed scheduled message sweep")
	return relayed
}

func (s *Scheduler) requestBackup(ctx context.Context) {
	if err := s.relay.Send(ctx, &protocol.Command{Type: protocol.CmdBackupChats}); err != nil {
		s.errLog.LogWarn(err, "Skipping chat backup")
		return
	}
	s.logger.Debug("Requested chat backup")
}
