package monitor

import (
	"context"
	"strings"
	"time"

	"waenhancer/internal/constants"
	"waenhancer/internal/errors"
	"waenhancer/internal/features"
	"waenhancer/internal/metrics"
	"waenhancer/internal/models"
	"waenhancer/internal/page"
)

// placeholderAttrs are checked, with the element text, for the status prompt.
var placeholderAttrs = []string{"placeholder", "data-placeholder", "aria-placeholder", "title"}

const statusUpdatedToast = "Status updated successfully!"

// runStatusDriver updates the status once, then every configured interval. A failed
// cycle is logged and the next one starts from scratch.
func (m *Monitor) runStatusDriver(ctx context.Context) {
	m.mu.Lock()
	interval := time.Duration(m.statusHours) * time.Hour
	m.mu.Unlock()

	m.statusCycle(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.statusCycle(ctx)
		}
	}
}

func statusIntervalHours(s *models.Settings) int {
	if h := s.AutoStatus.UpdateIntervalHours; h > 0 {
		return h
	}
	return constants.DefaultStatusIntervalHours
}

func (m *Monitor) statusCycle(ctx context.Context) {
	err := m.UpdateStatus(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return
	default:
		metrics.StatusUpdates.WithLabelValues("failed").Inc()
		m.errLog.LogFeatureFailure(err, features.FlagAutoStatus, "Status update aborted")
	}
}

// UpdateStatus sets the profile status to one of the configured messages.
func (m *Monitor) UpdateStatus(ctx context.Context) error {
	settings, err := m.refreshSettings(ctx)
	if err != nil {
		m.logger.WithError(err).Debug("Status update using cached settings")
	}
	messages := settings.AutoStatus.Messages
	if len(messages) == 0 {
		metrics.StatusUpdates.WithLabelValues("skipped").Inc()
		return nil
	}
	text := messages[m.cfg.Pick(len(messages))]

	button, err := page.WaitForElement(ctx, m.adapter, constants.SelectorStatusButton, m.cfg.Wait)
	if err != nil {
		return err
	}
	if err := button.Click(ctx); err != nil {
		return err
	}
	if err := sleep(ctx, m.cfg.StatusSettle); err != nil {
		return err
	}

	input, err := m.findStatusInput(ctx)
	if err != nil {
		return err
	}
	if err := input.SetText(ctx, text); err != nil {
		return err
	}

	confirm, err := m.findConfirmButton(ctx)
	if err != nil {
		return err
	}
	if err := confirm.Click(ctx); err != nil {
		return err
	}

	metrics.StatusUpdates.WithLabelValues("ok").Inc()
	m.logger.WithField("status_length", len([]rune(text))).Info("Status updated")
	m.toast(ctx, statusUpdatedToast)
	return nil
}

func (m *Monitor) findStatusInput(ctx context.Context) (page.Element, error) {
	candidates, err := m.adapter.QueryAll(ctx, constants.SelectorEditable)
	if err != nil {
		return nil, err
	}
	for _, el := range candidates {
		if text, err := el.Text(ctx); err == nil && containsFold(text, constants.StatusPlaceholderPattern) {
			return el, nil
		}
		for _, name := range placeholderAttrs {
			if v, ok, err := el.Attr(ctx, name); err == nil && ok && containsFold(v, constants.StatusPlaceholderPattern) {
				return el, nil
			}
		}
	}
	return nil, errors.NewElementNotFoundError(constants.SelectorEditable+" (status input)", 1, 0)
}

func (m *Monitor) findConfirmButton(ctx context.Context) (page.Element, error) {
	buttons, err := m.adapter.QueryAll(ctx, constants.SelectorButton)
	if err != nil {
		return nil, err
	}
	for _, el := range buttons {
		text, err := el.Text(ctx)
		if err != nil {
			continue
		}
		for _, label := range constants.StatusConfirmLabels {
			if strings.Contains(text, label) {
				return el, nil
			}
		}
	}
	return nil, errors.NewElementNotFoundError(constants.SelectorButton+" (save)", 1, 0)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
