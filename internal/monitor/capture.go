package monitor

import (
	"context"
	"fmt"
	"strings"

	"waenhancer/internal/constants"
	"waenhancer/internal/features"
	"waenhancer/internal/metrics"
	"waenhancer/internal/models"
	"waenhancer/internal/page"
	"waenhancer/internal/privacy"
	"waenhancer/pkg/protocol"

	"github.com/sirupsen/logrus"
)

func (m *Monitor) runCapture(ctx context.Context) {
	if _, err := page.WaitForElement(ctx, m.adapter, constants.SelectorAppRoot, m.cfg.Wait); err != nil {
		if ctx.Err() == nil {
			m.errLog.LogFeatureFailure(err, features.FlagAntiDelete, "Chat root never appeared, capture disabled")
		}
		return
	}

	stop, err := m.adapter.Observe(ctx, constants.SelectorAppRoot, func(mu page.Mutation) {
		for _, n := range mu.Removed {
			m.captureRemoved(ctx, n)
		}
	})
	if err != nil {
		m.errLog.LogFeatureFailure(err, features.FlagAntiDelete, "Failed to observe chat root")
		return
	}
	defer stop()

	m.logger.Info("Capturing removed messages")
	<-ctx.Done()
}

// captureRemoved records the message inside a removed subtree, once per id.
func (m *Monitor) captureRemoved(ctx context.Context, removed page.Node) {
	target := removed
	if !removed.Matches(constants.SelectorMessageID) {
		found, ok := removed.Query(constants.SelectorMessageID)
		if !ok {
			return
		}
		target = found
	}

	id, _ := target.Attr(constants.AttrMessageID)
	text := strings.TrimSpace(target.Text())
	if id == "" || text == "" {
		return
	}

	msg := models.CapturedMessage{
		ID:        id,
		Text:      text,
		Sender:    senderOf(target),
		Timestamp: models.FormatTimestamp(m.cfg.Now()),
		ChatID:    chatIDOf(id),
	}

	m.mu.Lock()
	if _, seen := m.captured[id]; seen {
		m.mu.Unlock()
		return
	}
	m.captured[id] = msg
	m.mu.Unlock()

	metrics.CapturedMessages.Inc()
	m.logger.WithFields(logrus.Fields{
		"message_id": privacy.MaskMessageID(id),
		"text":       privacy.MaskText(text),
	}).Info("Captured removed message")

	_, err := m.call(ctx, &protocol.Request{
		Type:      protocol.TypeLogDeletedMessage,
		MessageID: msg.ID,
		Text:      msg.Text,
		Sender:    msg.Sender,
		Timestamp: msg.Timestamp,
		ChatID:    msg.ChatID,
	})
	if err != nil {
		m.errLog.LogFeatureFailure(err, features.FlagAntiDelete, "Failed to persist captured message")
	}

	m.toast(ctx, fmt.Sprintf(`Message saved: "%s..."`, truncate(text, m.cfg.PreviewLength)))
}

// Captured returns a copy of the messages captured by this monitor.
func (m *Monitor) Captured() map[string]models.CapturedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.CapturedMessage, len(m.captured))
	for k, v := range m.captured {
		out[k] = v
	}
	return out
}

func senderOf(n page.Node) string {
	container, ok := n.Closest(constants.SelectorMessageContainer)
	if !ok {
		return constants.DefaultUnknownSender
	}
	text, ok := container.Query(constants.SelectorCopyableText)
	if !ok {
		return constants.DefaultUnknownSender
	}
	sender, ok := text.Attr(constants.AttrPrePlainText)
	if !ok || strings.TrimSpace(sender) == "" {
		return constants.DefaultUnknownSender
	}
	return sender
}

// chatIDOf extracts the chat from ids of the form "<fromMe>_<chat>_<serial>".
func chatIDOf(messageID string) string {
	parts := strings.SplitN(messageID, "_", 3)
	if len(parts) == 3 && strings.Contains(parts[1], "@") {
		return parts[1]
	}
	return ""
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
