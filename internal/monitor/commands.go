package monitor

import (
	"context"
	"strings"

	"waenhancer/internal/constants"
	"waenhancer/internal/errors"
	"waenhancer/internal/features"
	"waenhancer/internal/models"
	"waenhancer/internal/page"
	"waenhancer/internal/privacy"
	"waenhancer/internal/validation"
	"waenhancer/pkg/protocol"

	"github.com/sirupsen/logrus"
)

const (
	defaultComposePrompt = "Suggest a friendly message"
	aiFailedToast        = "Failed to get AI response. Try again later."
	aiNoKeyToast         = "API key not configured. Please add your Gemini API key in settings."
)

// HandleCommand executes a command from the background process. Failures are
// logged; commands have no reply.
func (m *Monitor) HandleCommand(ctx context.Context, cmd *protocol.Command) {
	logger := m.logger.WithField("command", cmd.Type)
	var err error
	feature := ""

	switch cmd.Type {
	case protocol.CmdSendScheduledMessage:
		err = m.sendScheduled(ctx, cmd.Message)
	case protocol.CmdSendAutoReply:
		feature = features.FlagAutoReply
		if !m.flags.IsEnabled(feature) {
			logger.Debug("Autoreply disabled, dropping reply")
			return
		}
		err = m.deliverText(ctx, cmd.Reply)
	case protocol.CmdToggleFeature:
		if cmd.Enabled == nil {
			err = errors.NewValidationError("enabled", "", "enabled is required")
			break
		}
		err = m.SetFeature(cmd.Feature, *cmd.Enabled)
	case protocol.CmdBackupChats:
		err = m.backupChats(ctx)
	case protocol.CmdAICompose:
		feature = features.FlagAIAssistant
		if !m.flags.IsEnabled(feature) {
			logger.Debug("AI assistant disabled, ignoring compose")
			return
		}
		err = m.aiCompose(ctx)
	case protocol.CmdReactToStatus:
		feature = features.FlagStatusReactions
		if !m.flags.IsEnabled(feature) {
			logger.Debug("Status reactions disabled, ignoring reaction")
			return
		}
		err = m.reactToStatus(ctx, cmd.StatusID, cmd.Emoji)
	case protocol.CmdDownloadStatus:
		feature = features.FlagStatusReactions
		if !m.flags.IsEnabled(feature) {
			logger.Debug("Status reactions disabled, ignoring download")
			return
		}
		err = m.downloadStatus(ctx, cmd.StatusID)
	default:
		logger.Warn("Unknown command")
		return
	}

	if err != nil {
		if feature == "" {
			feature = string(cmd.Type)
		}
		m.errLog.LogFeatureFailure(err, feature, "Command failed")
	}
}

func (m *Monitor) sendScheduled(ctx context.Context, msg *models.ScheduledMessage) error {
	if msg == nil {
		return errors.NewValidationError("message", "", "scheduled message is required")
	}
	payload, ok := msg.DecodeText()
	if !ok {
		m.logger.WithField("scheduled_id", msg.ID).Warn("Scheduled payload has no text, ignoring")
		return nil
	}
	if err := m.deliverText(ctx, payload.Text); err != nil {
		return err
	}
	m.logger.WithField("scheduled_id", msg.ID).Info("Scheduled message sent")
	return nil
}

// deliverText types text into the open chat and presses send.
func (m *Monitor) deliverText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.NewValidationError("text", "", "nothing to send")
	}
	box, err := page.WaitForElement(ctx, m.adapter, constants.SelectorComposeBox, m.cfg.Wait)
	if err != nil {
		return err
	}
	if err := box.SetText(ctx, text); err != nil {
		return err
	}
	send, err := page.WaitForElement(ctx, m.adapter, constants.SelectorSendButton, m.cfg.Wait)
	if err != nil {
		return err
	}
	return send.Click(ctx)
}

func (m *Monitor) backupChats(ctx context.Context) error {
	resp, err := m.call(ctx, &protocol.Request{Type: protocol.TypeGetDeletedMessages})
	if err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{
		"stored":   len(resp.Messages),
		"captured": len(m.Captured()),
	}).Info("Chat backup checkpoint")
	return nil
}

func (m *Monitor) aiCompose(ctx context.Context) error {
	settings, err := m.refreshSettings(ctx)
	if err != nil {
		m.logger.WithError(err).Debug("Compose using cached settings")
	}

	box, err := page.WaitForElement(ctx, m.adapter, constants.SelectorComposeBox, m.cfg.Wait)
	if err != nil {
		return err
	}
	prompt, err := box.Text(ctx)
	if err != nil {
		return err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = defaultComposePrompt
	}

	resp, err := m.call(ctx, &protocol.Request{
		Type:   protocol.TypeFetchAIResponse,
		APIKey: settings.AIAPIKey,
		Prompt: prompt,
		Model:  settings.AIModel,
	})
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeConfiguration) {
			m.toast(ctx, aiNoKeyToast)
		} else {
			m.toast(ctx, aiFailedToast)
		}
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"api_key":  privacy.MaskAPIKey(settings.AIAPIKey),
		"response": privacy.MaskText(resp.Response),
	}).Info("AI reply composed")
	return box.SetText(ctx, resp.Response)
}

// statusItem picks the status item with statusID, or the first visible one,
// and returns it with the id it should be recorded under. The item's own id
// wins over the requested one.
func (m *Monitor) statusItem(ctx context.Context, statusID string) (page.Element, string, error) {
	items, err := m.adapter.QueryAll(ctx, constants.SelectorStatusContainer)
	if err != nil {
		return nil, "", err
	}
	if len(items) == 0 {
		return nil, "", errors.NewElementNotFoundError(constants.SelectorStatusContainer, 1, 0)
	}

	item := items[0]
	for _, candidate := range items {
		if id, ok, _ := candidate.Attr(ctx, constants.AttrMessageID); ok && statusID != "" && id == statusID {
			item = candidate
			break
		}
	}
	if id, ok, _ := item.Attr(ctx, constants.AttrMessageID); ok && id != "" {
		statusID = id
	}
	if statusID == "" {
		statusID = models.DefaultStatusID(m.cfg.Now())
	}
	return item, statusID, nil
}

// reactToStatus records emoji for the status item with statusID, or the first
// visible one.
func (m *Monitor) reactToStatus(ctx context.Context, statusID, emoji string) error {
	_, statusID, err := m.statusItem(ctx, statusID)
	if err != nil {
		return err
	}

	record := &models.ReactionRecord{StatusID: statusID, Emoji: emoji}
	if err := validation.ValidateReaction(record); err != nil {
		return err
	}
	if _, err := m.call(ctx, &protocol.Request{
		Type:     protocol.TypeStatusReaction,
		StatusID: record.StatusID,
		Emoji:    record.Emoji,
	}); err != nil {
		return err
	}
	m.toast(ctx, "Reacted "+emoji)
	return nil
}
