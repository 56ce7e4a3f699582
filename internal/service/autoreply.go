package service

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"waenhancer/internal/errors"
	"waenhancer/internal/metrics"
	"waenhancer/internal/models"
	"waenhancer/pkg/protocol"
)

// MatchAutoReply returns the response of the first rule whose trigger occurs in text,
// ignoring case. Rules with an empty trigger never match.
func MatchAutoReply(text string, rules []models.AutoReplyRule) (string, bool) {
	lowered := strings.ToLower(text)
	for _, rule := range rules {
		if rule.Trigger == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(rule.Trigger)) {
			return rule.Response, true
		}
	}
	return "", false
}

// AutoReplyEngine answers inbound messages from the stored rules.
type AutoReplyEngine struct {
	mu      sync.RWMutex
	enabled bool
	rules   []models.AutoReplyRule

	relay  CommandRelay
	logger *logrus.Logger
	errLog *errors.Logger
}

func NewAutoReplyEngine(relay CommandRelay, logger *logrus.Logger) *AutoReplyEngine {
	return &AutoReplyEngine{
		relay:  relay,
		logger: logger,
		errLog: errors.NewLogger(logger),
	}
}

// Reload replaces the rule set with the one in s.
func (e *AutoReplyEngine) Reload(s *models.Settings) {
	rules := make([]models.AutoReplyRule, len(s.AutoReplyRules))
	copy(rules, s.AutoReplyRules)

	e.mu.Lock()
	e.enabled = s.AutoReplyEnabled
	e.rules = rules
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"enabled":      s.AutoReplyEnabled,
		LogFieldCount: len(rules),
	}).Debug("Autoreply rules loaded")
}

// HandleMessage evaluates an inbound message and relays a sendAutoReply command on a
// hit. It reports the chosen response. A miss is silent.
func (e *AutoReplyEngine) HandleMessage(ctx context.Context, text string) (string, bool) {
	e.mu.RLock()
	enabled := e.enabled
	rules := e.rules
	e.mu.RUnlock()

	if !enabled {
		metrics.AutoReplyMatches.WithLabelValues("disabled").Inc()
		return "", false
	}

	reply, ok := MatchAutoReply(text, rules)
	if !ok {
		metrics.AutoReplyMatches.WithLabelValues("miss").Inc()
		return "", false
	}
	metrics.AutoReplyMatches.WithLabelValues("hit").Inc()

	cmd := &protocol.Command{Type: protocol.CmdSendAutoReply, Reply: reply}
	if err := e.relay.Send(ctx, cmd); err != nil {
		e.errLog.LogWarn(err, "Failed to relay autoreply")
	}
	return reply, true
}
