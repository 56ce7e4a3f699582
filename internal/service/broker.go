package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"waenhancer/internal/constants"
	"waenhancer/internal/errors"
	"waenhancer/internal/features"
	"waenhancer/internal/metrics"
	"waenhancer/internal/models"
	"waenhancer/internal/privacy"
	"waenhancer/internal/tracing"
	"waenhancer/internal/validation"
	"waenhancer/pkg/protocol"
)

// Store is the persistence the broker needs. *database.Database satisfies it.
type Store interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, patch map[string]json.RawMessage) (*models.Settings, []string, error)
	LogDeletedMessage(ctx context.Context, msg *models.CapturedMessage) (bool, error)
	GetDeletedMessages(ctx context.Context) (map[string]models.CapturedMessage, error)
	ClearDeletedMessages(ctx context.Context) (int64, error)
	EnqueueScheduledMessage(ctx context.Context, msg *models.ScheduledMessage) error
	ListScheduledMessages(ctx context.Context) ([]models.ScheduledMessage, error)
	SaveReaction(ctx context.Context, r models.ReactionRecord) error
	GetReactions(ctx context.Context) (map[string]string, error)
}

// Generator produces a text completion. *gemini.Client satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, apiKey, model, prompt string) (string, error)
}

// Broker answers protocol requests on behalf of the background process. It is the only
// writer of the Store.
type Broker struct {
	store        Store
	ai           Generator
	relay        CommandRelay
	autoReply    *AutoReplyEngine
	defaultModel string
	now          func() time.Time
	logger       *logrus.Logger
	errLog       *errors.Logger
}

func NewBroker(store Store, ai Generator, relay CommandRelay, autoReply *AutoReplyEngine, defaultModel string, logger *logrus.Logger) *Broker {
	if defaultModel == "" {
		defaultModel = constants.DefaultAIModel
	}
	return &Broker{
		store:        store,
		ai:           ai,
		relay:        relay,
		autoReply:    autoReply,
		defaultModel: defaultModel,
		now:          time.Now,
		logger:       logger,
		errLog:       errors.NewLogger(logger),
	}
}

// LoadRules primes the autoreply engine from the stored settings.
func (b *Broker) LoadRules(ctx context.Context) error {
	s, err := b.store.GetSettings(ctx)
	if err != nil {
		return err
	}
	b.autoReply.Reload(s)
	return nil
}

// Handle answers req once the underlying operation has resolved. Notifications
// return nil.
func (b *Broker) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	ctx, span := tracing.StartSpan(ctx, "protocol."+string(req.Type),
		attribute.String("protocol.type", string(req.Type)))
	defer span.End()

	resp := b.dispatch(ctx, req)

	result := "ok"
	if resp != nil && !resp.Success {
		result = resp.ErrorCode
		tracing.AddSpanAttributes(ctx, attribute.String("error.code", resp.ErrorCode))
	}
	metrics.ProtocolRequests.WithLabelValues(string(req.Type), result).Inc()
	return resp
}

func (b *Broker) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	if err := req.Validate(); err != nil {
		if req.Type.IsNotification() {
			b.errLog.LogWarn(err, "Dropping invalid notification")
			return nil
		}
		return b.fail(ctx, req, err)
	}

	switch req.Type {
	case protocol.TypeGetSettings:
		s, err := b.store.GetSettings(ctx)
		if err != nil {
			return b.fail(ctx, req, err)
		}
		return &protocol.Response{Success: true, Settings: s}

	case protocol.TypeSaveSettings:
		return b.saveSettings(ctx, req)

	case protocol.TypeFetchAIResponse:
		return b.fetchAIResponse(ctx, req)

	case protocol.TypeLogDeletedMessage:
		return b.logDeletedMessage(ctx, req)

	case protocol.TypeGetDeletedMessages:
		msgs, err := b.store.GetDeletedMessages(ctx)
		if err != nil {
			return b.fail(ctx, req, err)
		}
		return &protocol.Response{Success: true, Messages: msgs}

	case protocol.TypeClearDeletedMessages:
		n, err := b.store.ClearDeletedMessages(ctx)
		if err != nil {
			return b.fail(ctx, req, err)
		}
		b.logger.WithField(LogFieldCount, n).Info("Cleared deleted messages")
		return &protocol.Response{Success: true, Removed: n}

	case protocol.TypeScheduleMessage:
		msg := *req.Data
		if err := validation.ValidateScheduledMessage(&msg); err != nil {
			return b.fail(ctx, req, err)
		}
		if err := b.store.EnqueueScheduledMessage(ctx, &msg); err != nil {
			return b.fail(ctx, req, err)
		}
		// a past time is accepted and goes out on the next sweep
		b.logger.WithFields(logrus.Fields{
			"scheduled_id":   msg.ID,
			"scheduled_time": msg.ScheduledTime,
			"due":            msg.Due(b.now()),
		}).Info("Scheduled message queued")
		return protocol.OK()

	case protocol.TypeGetScheduledMessages:
		items, err := b.store.ListScheduledMessages(ctx)
		if err != nil {
			return b.fail(ctx, req, err)
		}
		return &protocol.Response{Success: true, Scheduled: items}

	case protocol.TypeNewMessage:
		if reply, ok := b.autoReply.HandleMessage(ctx, req.Text); ok {
			LogWithContext(ctx, b.logger).
				WithFields(MessageFields(ctx, req.MessageID, req.ChatID, reply)).
				Info("Autoreply matched")
		}
		return nil

	case protocol.TypeStatusReaction:
		r := models.ReactionRecord{StatusID: req.StatusID, Emoji: req.Emoji}
		if r.StatusID == "" {
			r.StatusID = models.DefaultStatusID(b.now())
		}
		if err := validation.ValidateReaction(&r); err != nil {
			return b.fail(ctx, req, err)
		}
		if err := b.store.SaveReaction(ctx, r); err != nil {
			return b.fail(ctx, req, err)
		}
		return protocol.OK()

	case protocol.TypeGetReactions:
		reactions, err := b.store.GetReactions(ctx)
		if err != nil {
			return b.fail(ctx, req, err)
		}
		return &protocol.Response{Success: true, Reactions: reactions}

	case protocol.TypeRelayCommand:
		return b.relayCommand(ctx, req)
	}

	return b.fail(ctx, req, errors.NewValidationError("type", string(req.Type), "unknown message type"))
}

func (b *Broker) saveSettings(ctx context.Context, req *protocol.Request) *protocol.Response {
	merged, err := b.applySettings(ctx, req.Settings)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	return &protocol.Response{Success: true, Settings: merged}
}

func (b *Broker) applySettings(ctx context.Context, patch map[string]json.RawMessage) (*models.Settings, error) {
	merged, ignored, err := b.store.SaveSettings(ctx, patch)
	if err != nil {
		return nil, err
	}
	if len(ignored) > 0 {
		b.logger.WithField("keys", ignored).Warn("Ignored unknown setting keys")
	}

	_, rulesChanged := patch[models.SettingAutoReplyRules]
	_, enabledChanged := patch[models.SettingAutoReply]
	if rulesChanged || enabledChanged {
		b.autoReply.Reload(merged)
	}

	LogWithContext(ctx, b.logger).WithField(LogFieldCount, len(patch)-len(ignored)).Info("Settings saved")
	return merged, nil
}

func (b *Broker) fetchAIResponse(ctx context.Context, req *protocol.Request) *protocol.Response {
	if req.APIKey == "" {
		return b.fail(ctx, req, errors.NewConfigurationError(models.SettingAIAPIKey, "API key is not configured"))
	}
	if err := validation.ValidateStringLength(req.Prompt, "prompt", 1, constants.MaxMessageTextBytes); err != nil {
		return b.fail(ctx, req, err)
	}

	model := req.Model
	if model == "" {
		if s, err := b.store.GetSettings(ctx); err == nil {
			model = s.AIModel
		}
	}
	if model == "" {
		model = b.defaultModel
	}

	// ai_requests_* are recorded by the generator, which also sees breaker rejections.
	start := time.Now()
	text, err := b.ai.GenerateContent(ctx, req.APIKey, model, req.Prompt)
	if err != nil {
		return b.fail(ctx, req, err)
	}

	LogWithContext(ctx, b.logger).WithFields(logrus.Fields{
		LogFieldModel:    model,
		"api_key":        privacy.MaskAPIKey(req.APIKey),
		LogFieldDuration: time.Since(start).Milliseconds(),
	}).Debug("Generation completed")
	return &protocol.Response{Success: true, Response: text}
}

func (b *Broker) logDeletedMessage(ctx context.Context, req *protocol.Request) *protocol.Response {
	msg := &models.CapturedMessage{
		ID:        req.MessageID,
		Text:      req.Text,
		Sender:    req.Sender,
		Timestamp: req.Timestamp,
		ChatID:    req.ChatID,
	}
	if msg.Sender == "" {
		msg.Sender = constants.DefaultUnknownSender
	}
	if msg.Timestamp == "" {
		msg.Timestamp = models.FormatTimestamp(b.now())
	}
	if err := validation.ValidateCapturedMessage(msg); err != nil {
		return b.fail(ctx, req, err)
	}

	created, err := b.store.LogDeletedMessage(ctx, msg)
	if err != nil {
		return b.fail(ctx, req, err)
	}
	entry := LogWithContext(ctx, b.logger).WithFields(MessageFields(ctx, msg.ID, msg.ChatID, msg.Text))
	if created {
		entry.Info("Deleted message logged")
	} else {
		entry.Debug("Deleted message already logged")
	}
	return protocol.OK()
}

// relayCommand forwards a popup command to the monitor. A feature toggle is persisted
// first, so a monitor that is not connected picks it up when it next loads settings.
func (b *Broker) relayCommand(ctx context.Context, req *protocol.Request) *protocol.Response {
	cmd := req.Command
	persisted := false

	if cmd.Type == protocol.CmdToggleFeature {
		if cmd.Enabled == nil {
			return b.fail(ctx, req, errors.NewValidationError("enabled", "", "enabled is required"))
		}
		if !features.IsKnown(cmd.Feature) {
			return b.fail(ctx, req, errors.NewValidationError("feature", cmd.Feature, "unknown feature"))
		}
		current, err := b.store.GetSettings(ctx)
		if err != nil {
			return b.fail(ctx, req, err)
		}
		patch, err := features.SettingPatch(cmd.Feature, *cmd.Enabled, current)
		if err != nil {
			return b.fail(ctx, req, err)
		}
		if _, err := b.applySettings(ctx, patch); err != nil {
			return b.fail(ctx, req, err)
		}
		persisted = true
	}

	if err := b.relay.Send(ctx, cmd); err != nil {
		if persisted && errors.HasCode(err, errors.ErrCodeNoTarget) {
			b.logger.WithField(LogFieldFeature, cmd.Feature).Info("Feature toggle saved; no monitor connected")
			return protocol.OK()
		}
		return b.fail(ctx, req, err)
	}
	return protocol.OK()
}

func (b *Broker) fail(ctx context.Context, req *protocol.Request, err error) *protocol.Response {
	tracing.RecordError(ctx, err)
	fields := logrus.Fields{LogFieldType: req.Type}
	if id := tracing.GetRequestID(ctx); id != "" {
		fields[LogFieldRequestID] = id
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeStorage, errors.ErrCodeInternalError:
		b.errLog.LogError(err, "Request failed", fields)
	default:
		b.errLog.LogWarn(err, "Request failed", fields)
	}
	return protocol.Failure(err)
}
