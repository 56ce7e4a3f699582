package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"waenhancer/internal/constants"
	"waenhancer/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboundWatcher_ReportsNewMessages(t *testing.T) {
	p := newObservedPage(chatPage)
	backend := newFakeBackend(onlyFeatures("autoReply"))
	m := New(p, &toasts{}, quietLogger(), testConfig())
	m.SetBackend(backend)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	select {
	case <-p.observed:
	case <-time.After(2 * time.Second):
		t.Fatal("inbound watcher never observed the chat root")
	}

	incoming := `<div class="row"><div class="message-in" data-id="false_555@c.us_B1">
<div class="copyable-text" data-pre-plain-text="[9:00] Bob: "><span>Hi, what's the price?</span></div></div></div>`
	require.NoError(t, p.Append("#main", incoming))
	// a re-render of the same message is not reported again
	require.NoError(t, p.Append("#main", incoming))
	require.NoError(t, p.Append("#main", `<div class="message-out" data-id="true_555@c.us_B2">my own</div>`))

	notes := backend.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, protocol.TypeNewMessage, notes[0].Type)
	assert.Equal(t, "Hi, what's the price?", notes[0].Text)
	assert.Equal(t, "false_555@c.us_B1", notes[0].MessageID)
	assert.Equal(t, "555@c.us", notes[0].ChatID)
	assert.Equal(t, "[9:00] Bob: ", notes[0].Sender)
}

func TestInboundWatcher_StopsWhenToggledOff(t *testing.T) {
	p := newObservedPage(chatPage)
	m := New(p, &toasts{}, quietLogger(), testConfig())
	m.SetBackend(newFakeBackend(onlyFeatures("autoReply")))
	require.NoError(t, m.Start(context.Background()))
	<-p.observed

	require.NoError(t, m.SetFeature("autoReply", false))
	assert.False(t, m.Running("autoReply"))
	assert.False(t, m.Flags().IsEnabled("autoReply"))

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher goroutine did not exit")
	}
}

func TestMarkInbound_ForgetsOldestPastCap(t *testing.T) {
	m := New(newObservedPage(chatPage), &toasts{}, quietLogger(), testConfig())

	for i := 0; i < constants.MaxInboundTracked; i++ {
		assert.False(t, m.markInbound(fmt.Sprintf("id-%d", i)))
	}
	assert.True(t, m.markInbound("id-0"))

	assert.False(t, m.markInbound("overflow"))
	assert.Len(t, m.inbound, constants.MaxInboundTracked)
	assert.Len(t, m.inboundOrder, constants.MaxInboundTracked)
	assert.False(t, m.markInbound("id-0"), "oldest id should have been evicted")
	assert.True(t, m.markInbound("overflow"))
	assert.True(t, m.markInbound(fmt.Sprintf("id-%d", constants.MaxInboundTracked-1)))
}
