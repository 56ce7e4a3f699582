package monitor

import (
	"context"
	"strings"

	"waenhancer/internal/constants"
	"waenhancer/internal/features"
	"waenhancer/internal/page"
	"waenhancer/internal/privacy"
	"waenhancer/pkg/protocol"

	"github.com/sirupsen/logrus"
)

// runInboundWatcher reports every inbound message added to the chat view as a
// newMessage notification. Rule matching happens in the background process.
func (m *Monitor) runInboundWatcher(ctx context.Context) {
	if _, err := page.WaitForElement(ctx, m.adapter, constants.SelectorAppRoot, m.cfg.Wait); err != nil {
		if ctx.Err() == nil {
			m.errLog.LogFeatureFailure(err, features.FlagAutoReply, "Chat root never appeared, autoreply disabled")
		}
		return
	}

	stop, err := m.adapter.Observe(ctx, constants.SelectorAppRoot, func(mu page.Mutation) {
		for _, n := range mu.Added {
			for _, msg := range inboundMessages(n) {
				m.reportInbound(ctx, msg)
			}
		}
	})
	if err != nil {
		m.errLog.LogFeatureFailure(err, features.FlagAutoReply, "Failed to observe chat root")
		return
	}
	defer stop()
	<-ctx.Done()
}

func inboundMessages(n page.Node) []page.Node {
	if n.Matches(constants.SelectorInboundMessage) {
		return []page.Node{n}
	}
	return n.QueryAll(constants.SelectorInboundMessage)
}

func (m *Monitor) reportInbound(ctx context.Context, n page.Node) {
	text := n.Text()
	if t, ok := n.Query(constants.SelectorCopyableText); ok {
		text = t.Text()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	id := messageIDOf(n)
	// the host re-renders messages when a chat is reopened
	if id != "" && m.markInbound(id) {
		return
	}

	err := m.notify(ctx, &protocol.Request{
		Type:      protocol.TypeNewMessage,
		MessageID: id,
		Text:      text,
		Sender:    senderOf(n),
		ChatID:    chatIDOf(id),
	})
	if err != nil {
		m.errLog.LogFeatureFailure(err, features.FlagAutoReply, "Failed to report inbound message")
		return
	}
	m.logger.WithFields(logrus.Fields{
		"message_id": privacy.MaskMessageID(id),
		"text":       privacy.MaskText(text),
	}).Debug("Reported inbound message")
}

// markInbound records id and reports whether it was already seen. Once
// MaxInboundTracked ids are held the oldest is forgotten.
func (m *Monitor) markInbound(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.inbound[id]; seen {
		return true
	}
	if len(m.inboundOrder) >= constants.MaxInboundTracked {
		delete(m.inbound, m.inboundOrder[0])
		m.inboundOrder = m.inboundOrder[1:]
	}
	m.inbound[id] = struct{}{}
	m.inboundOrder = append(m.inboundOrder, id)
	return false
}

func messageIDOf(n page.Node) string {
	if id, ok := n.Attr(constants.AttrMessageID); ok {
		return id
	}
	if holder, ok := n.Closest(constants.SelectorMessageID); ok {
		id, _ := holder.Attr(constants.AttrMessageID)
		return id
	}
	if holder, ok := n.Query(constants.SelectorMessageID); ok {
		id, _ := holder.Attr(constants.AttrMessageID)
		return id
	}
	return ""
}
