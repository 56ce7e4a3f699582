package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"waenhancer/internal/errors"
	"waenhancer/internal/metrics"
	"waenhancer/internal/models"
	"waenhancer/pkg/protocol"
)

func TestMatchAutoReply(t *testing.T) {
	rules := []models.AutoReplyRule{
		{Trigger: "hi", Response: "hello"},
		{Trigger: "price", Response: "see catalog"},
	}

	tests := []struct {
		name  string
		text  string
		rules []models.AutoReplyRule
		want  string
		ok    bool
	}{
		{name: "first rule wins", text: "Hi, what's the price?", rules: rules, want: "hello", ok: true},
		{name: "case insensitive", text: "PRICE LIST", rules: rules, want: "see catalog", ok: true},
		{name: "substring match", text: "this", rules: rules, want: "hello", ok: true},
		{name: "no match", text: "good morning", rules: rules},
		{name: "no rules", text: "hi"},
		{name: "empty trigger never matches", text: "anything", rules: []models.AutoReplyRule{{Trigger: "", Response: "x"}}},
		{name: "empty text", text: "", rules: rules},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchAutoReply(tt.text, tt.rules)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAutoReplyEngine_HitRelaysCommand(t *testing.T) {
	relay := &mockRelay{}
	engine := NewAutoReplyEngine(relay, quietLogger())
	engine.Reload(&models.Settings{
		AutoReplyEnabled: true,
		AutoReplyRules:   []models.AutoReplyRule{{Trigger: "hi", Response: "hello"}},
	})

	relay.On("Send", mock.Anything, mock.MatchedBy(func(cmd *protocol.Command) bool {
		return cmd.Type == protocol.CmdSendAutoReply && cmd.Reply == "hello"
	})).Return(nil).Once()

	before := testutil.ToFloat64(metrics.AutoReplyMatches.WithLabelValues("hit"))
	reply, ok := engine.HandleMessage(context.Background(), "Hi there")

	assert.True(t, ok)
	assert.Equal(t, "hello", reply)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AutoReplyMatches.WithLabelValues("hit")))
	relay.AssertExpectations(t)
}

func TestAutoReplyEngine_MissIsSilent(t *testing.T) {
	relay := &mockRelay{}
	engine := NewAutoReplyEngine(relay, quietLogger())
	engine.Reload(&models.Settings{
		AutoReplyEnabled: true,
		AutoReplyRules:   []models.AutoReplyRule{{Trigger: "hi", Response: "hello"}},
	})

	_, ok := engine.HandleMessage(context.Background(), "good morning")

	assert.False(t, ok)
	relay.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestAutoReplyEngine_Disabled(t *testing.T) {
	relay := &mockRelay{}
	engine := NewAutoReplyEngine(relay, quietLogger())
	engine.Reload(&models.Settings{
		AutoReplyEnabled: false,
		AutoReplyRules:   []models.AutoReplyRule{{Trigger: "hi", Response: "hello"}},
	})

	_, ok := engine.HandleMessage(context.Background(), "hi")

	assert.False(t, ok)
	relay.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestAutoReplyEngine_RelayFailureStillReportsMatch(t *testing.T) {
	relay := &mockRelay{}
	engine := NewAutoReplyEngine(relay, quietLogger())
	engine.Reload(&models.Settings{
		AutoReplyEnabled: true,
		AutoReplyRules:   []models.AutoReplyRule{{Trigger: "hi", Response: "hello"}},
	})
	relay.On("Send", mock.Anything, mock.Anything).Return(errors.NewNoTargetError("sendAutoReply")).Once()

	reply, ok := engine.HandleMessage(context.Background(), "hi")

	assert.True(t, ok)
	assert.Equal(t, "hello", reply)
	relay.AssertExpectations(t)
}

func TestAutoReplyEngine_ReloadCopiesRules(t *testing.T) {
	relay := &mockRelay{}
	relay.On("Send", mock.Anything, mock.Anything).Return(nil).Once()
	engine := NewAutoReplyEngine(relay, quietLogger())
	s := &models.Settings{AutoReplyEnabled: true, AutoReplyRules: []models.AutoReplyRule{{Trigger: "apple", Response: "b"}}}
	engine.Reload(s)

	s.AutoReplyRules[0].Trigger = "changed"

	reply, ok := engine.HandleMessage(context.Background(), "an apple")
	assert.True(t, ok)
	assert.Equal(t, "b", reply)
	relay.AssertExpectations(t)
}
