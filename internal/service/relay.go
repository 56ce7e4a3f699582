package service

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"waenhancer/internal/errors"
	"waenhancer/internal/metrics"
	"waenhancer/pkg/protocol"
)

// CommandSender delivers a command to one connected monitor. *protocol.Conn satisfies it.
type CommandSender interface {
	SendCommand(ctx context.Context, cmd *protocol.Command) error
}

// CommandRelay delivers a command to some connected monitor.
type CommandRelay interface {
	Send(ctx context.Context, cmd *protocol.Command) error
}

// Hub tracks connected monitors in connection order and relays commands to the
// earliest one still connected.
type Hub struct {
	mu      sync.Mutex
	senders []*hubEntry
	nextID  uint64
	timeout time.Duration
	logger  *logrus.Logger
}

type hubEntry struct {
	id     uint64
	sender CommandSender
}

func NewHub(timeout time.Duration, logger *logrus.Logger) *Hub {
	return &Hub{timeout: timeout, logger: logger}
}

// Register adds a monitor. The returned func removes it and is safe to call twice.
func (h *Hub) Register(sender CommandSender) (unregister func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.senders = append(h.senders, &hubEntry{id: id, sender: sender})
	count := len(h.senders)
	h.mu.Unlock()

	metrics.ConnectedMonitors.Inc()
	h.logger.WithField(LogFieldCount, count).Info("Monitor connected")

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	for i, e := range h.senders {
		if e.id == id {
			h.senders = append(h.senders[:i], h.senders[i+1:]...)
			break
		}
	}
	count := len(h.senders)
	h.mu.Unlock()

	metrics.ConnectedMonitors.Dec()
	h.logger.WithField(LogFieldCount, count).Info("Monitor disconnected")
}

// Count returns the number of connected monitors.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.senders)
}

// Send relays cmd to the first connected monitor. With none connected it returns a
// NO_TARGET error; the command is not queued.
func (h *Hub) Send(ctx context.Context, cmd *protocol.Command) error {
	h.mu.Lock()
	var target CommandSender
	if len(h.senders) > 0 {
		target = h.senders[0].sender
	}
	h.mu.Unlock()

	if target == nil {
		return errors.NewNoTargetError(string(cmd.Type))
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	if err := target.SendCommand(ctx, cmd); err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) && h.timeout > 0 {
			return errors.NewTimeoutError("relay "+string(cmd.Type), h.timeout)
		}
		return errors.Wrap(err, errors.ErrCodeNetwork, "relay command to monitor").
			WithContext("command", string(cmd.Type))
	}
	h.logger.WithField(LogFieldCommand, cmd.Type).Debug("Relayed command to monitor")
	return nil
}
