package monitor

import (
	"context"
	"encoding/json"
	"testing"

	"waenhancer/internal/errors"
	"waenhancer/internal/models"
	"waenhancer/internal/page/htmlpage"
	"waenhancer/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const composePage = `<html><body>
<div class="app-wrapper-web">
  <div data-animate-status-viewer="true">
    <div data-testid="status-container" data-id="status-1" id="s1"></div>
    <div data-testid="status-container" data-id="status-2" id="s2"></div>
  </div>
  <footer><div contenteditable="true" id="compose"></div><button aria-label="Send" id="send">send</button></footer>
</div>
</body></html>`

func newCommandMonitor(t *testing.T, settings *models.Settings) (*Monitor, *htmlpage.Page, *clickLog, *fakeBackend, *toasts) {
	t.Helper()
	p := htmlpage.MustNew(composePage)
	clicks := &clickLog{}
	p.OnClick(clicks.record)
	backend := newFakeBackend(settings)
	notes := &toasts{}
	m := New(p, notes, quietLogger(), testConfig())
	m.SetBackend(backend)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
	return m, p, clicks, backend, notes
}

func composeText(t *testing.T, p *htmlpage.Page) string {
	t.Helper()
	el, err := p.Query(context.Background(), "#compose")
	require.NoError(t, err)
	text, _ := el.Text(context.Background())
	return text
}

func TestHandleCommand_SendScheduledMessage(t *testing.T) {
	m, p, clicks, _, _ := newCommandMonitor(t, onlyFeatures())

	m.HandleCommand(context.Background(), &protocol.Command{
		Type:    protocol.CmdSendScheduledMessage,
		Message: &models.ScheduledMessage{ID: 4, ScheduledTime: 1, Payload: json.RawMessage(`{"text":"good morning"}`)},
	})

	assert.Equal(t, "good morning", composeText(t, p))
	assert.Equal(t, []string{"send"}, clicks.all())
}

func TestHandleCommand_ScheduledPayloadWithoutTextIgnored(t *testing.T) {
	m, p, clicks, _, _ := newCommandMonitor(t, onlyFeatures())

	m.HandleCommand(context.Background(), &protocol.Command{
		Type:    protocol.CmdSendScheduledMessage,
		Message: &models.ScheduledMessage{ID: 5, Payload: json.RawMessage(`{"image":"x.png"}`)},
	})

	assert.Empty(t, composeText(t, p))
	assert.Empty(t, clicks.all())
}

func TestHandleCommand_AutoReplyRespectsFlag(t *testing.T) {
	m, p, clicks, _, _ := newCommandMonitor(t, onlyFeatures())

	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdSendAutoReply, Reply: "hello"})
	assert.Empty(t, clicks.all())

	require.NoError(t, m.SetFeature("autoReply", true))
	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdSendAutoReply, Reply: "hello"})
	assert.Equal(t, "hello", composeText(t, p))
	assert.Equal(t, []string{"send"}, clicks.all())
}

func TestHandleCommand_ToggleInvisibleMode(t *testing.T) {
	m, _, _, _, _ := newCommandMonitor(t, onlyFeatures())
	on, off := true, false

	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdToggleFeature, Feature: "invisibleMode", Enabled: &on})
	assert.True(t, m.cfg.Interception.On())
	assert.True(t, m.Running("invisibleMode"))
	assert.True(t, m.Flags().IsEnabled("invisibleMode"))

	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdToggleFeature, Feature: "invisibleMode", Enabled: &off})
	assert.False(t, m.cfg.Interception.On())
	assert.False(t, m.Running("invisibleMode"))

	// unknown features and missing values change nothing
	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdToggleFeature, Feature: "messageStats", Enabled: &on})
	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdToggleFeature, Feature: "invisibleMode"})
	assert.False(t, m.cfg.Interception.On())
}

func TestStart_InvisibleModeFromSettings(t *testing.T) {
	m, _, _, _, _ := newCommandMonitor(t, onlyFeatures("invisibleMode"))
	assert.True(t, m.cfg.Interception.On())

	m.Stop()
	assert.False(t, m.cfg.Interception.On())
}

func TestHandleCommand_AICompose(t *testing.T) {
	settings := onlyFeatures("aiAssistant")
	settings.AIAPIKey = "AIzaTEST"
	settings.AIModel = "gemini-1.5-flash"
	m, p, _, backend, _ := newCommandMonitor(t, settings)
	backend.respond = func(req *protocol.Request) *protocol.Response {
		if req.Type == protocol.TypeFetchAIResponse {
			return &protocol.Response{Success: true, Response: "Hey! How are you?"}
		}
		return nil
	}

	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdAICompose})

	reqs := backend.callsOf(protocol.TypeFetchAIResponse)
	require.Len(t, reqs, 1)
	assert.Equal(t, "Suggest a friendly message", reqs[0].Prompt)
	assert.Equal(t, "AIzaTEST", reqs[0].APIKey)
	assert.Equal(t, "gemini-1.5-flash", reqs[0].Model)
	assert.Equal(t, "Hey! How are you?", composeText(t, p))
}

func TestHandleCommand_AIComposeWithoutKey(t *testing.T) {
	m, p, _, backend, notes := newCommandMonitor(t, onlyFeatures("aiAssistant"))
	backend.respond = func(req *protocol.Request) *protocol.Response {
		if req.Type == protocol.TypeFetchAIResponse {
			return protocol.Failure(errors.NewConfigurationError("aiApiKey", "API key not configured"))
		}
		return nil
	}

	compose, err := p.Query(context.Background(), "#compose")
	require.NoError(t, err)
	require.NoError(t, compose.SetText(context.Background(), "draft"))

	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdAICompose})

	assert.Equal(t, "draft", backend.callsOf(protocol.TypeFetchAIResponse)[0].Prompt)
	assert.Equal(t, "draft", composeText(t, p))
	assert.Equal(t, []string{aiNoKeyToast}, notes.all())
}

func TestHandleCommand_AIComposeDisabled(t *testing.T) {
	m, _, _, backend, _ := newCommandMonitor(t, onlyFeatures())

	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdAICompose})

	assert.Empty(t, backend.callsOf(protocol.TypeFetchAIResponse))
}

func TestHandleCommand_ReactToStatus(t *testing.T) {
	m, _, _, backend, notes := newCommandMonitor(t, onlyFeatures("statusReactions"))

	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdReactToStatus, StatusID: "status-2", Emoji: "😂"})
	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdReactToStatus, Emoji: "❤️"})
	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdReactToStatus, Emoji: "👍"})

	reqs := backend.callsOf(protocol.TypeStatusReaction)
	require.Len(t, reqs, 2)
	assert.Equal(t, "status-2", reqs[0].StatusID)
	assert.Equal(t, "😂", reqs[0].Emoji)
	assert.Equal(t, "status-1", reqs[1].StatusID)
	assert.Equal(t, []string{"Reacted 😂", "Reacted ❤️"}, notes.all())
}

func TestHandleCommand_BackupChats(t *testing.T) {
	m, _, _, backend, _ := newCommandMonitor(t, onlyFeatures())

	m.HandleCommand(context.Background(), &protocol.Command{Type: protocol.CmdBackupChats})

	assert.Len(t, backend.callsOf(protocol.TypeGetDeletedMessages), 1)
}

func TestStart_WithoutBackendUsesDefaults(t *testing.T) {
	p := htmlpage.MustNew(composePage)
	m := New(p, &toasts{}, quietLogger(), testConfig())

	err := m.Start(context.Background())
	defer m.Stop()

	assert.ErrorIs(t, err, ErrNoBackend)
	assert.True(t, m.Flags().IsEnabled("antiDelete"))
	assert.True(t, m.Running("antiDelete"))
	assert.Equal(t, models.DefaultSettings().AIModel, m.Settings().AIModel)

	assert.Error(t, m.Start(context.Background()))
}
