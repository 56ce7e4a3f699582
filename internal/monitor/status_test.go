package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"waenhancer/internal/errors"
	"waenhancer/internal/page"
	"waenhancer/internal/page/htmlpage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusPage = `<html><body>
<div class="app-wrapper-web">
  <div title="Status" id="status-button">Status</div>
  <div contenteditable="true" id="search">Search</div>
  <div contenteditable="true" id="status-input">Click to add about</div>
  <button id="cancel">Cancel</button>
  <button id="save">Save</button>
</div>
</body></html>`

type clickLog struct {
	mu  sync.Mutex
	ids []string
}

func (c *clickLog) record(el page.Node) {
	id, _ := el.Attr("id")
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.mu.Unlock()
}

func (c *clickLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func newStatusMonitor(t *testing.T, markup string, messages []string) (*Monitor, *htmlpage.Page, *clickLog, *toasts) {
	t.Helper()
	p := htmlpage.MustNew(markup)
	clicks := &clickLog{}
	p.OnClick(clicks.record)

	settings := onlyFeatures()
	settings.AutoStatus.Messages = messages
	notes := &toasts{}
	cfg := testConfig()
	cfg.Pick = func(n int) int { return n - 1 }
	m := New(p, notes, quietLogger(), cfg)
	m.SetBackend(newFakeBackend(settings))
	return m, p, clicks, notes
}

func TestUpdateStatus_Success(t *testing.T) {
	m, p, clicks, notes := newStatusMonitor(t, statusPage, []string{"first", "Busy day ahead"})

	require.NoError(t, m.UpdateStatus(context.Background()))

	assert.Equal(t, []string{"status-button", "save"}, clicks.all())
	input, err := p.Query(context.Background(), "#status-input")
	require.NoError(t, err)
	text, _ := input.Text(context.Background())
	assert.Equal(t, "Busy day ahead", text)
	assert.Equal(t, []string{"Status updated successfully!"}, notes.all())
}

func TestUpdateStatus_PlaceholderAttribute(t *testing.T) {
	markup := `<html><body>
<div title="Status" id="status-button"></div>
<div contenteditable="true" id="status-input" data-placeholder="CLICK TO type"></div>
<button id="update">Update</button>
</body></html>`
	m, p, clicks, _ := newStatusMonitor(t, markup, []string{"away"})

	require.NoError(t, m.UpdateStatus(context.Background()))

	assert.Equal(t, []string{"status-button", "update"}, clicks.all())
	input, _ := p.Query(context.Background(), "#status-input")
	text, _ := input.Text(context.Background())
	assert.Equal(t, "away", text)
}

func TestUpdateStatus_EmptyMessagesIsNoop(t *testing.T) {
	m, _, clicks, notes := newStatusMonitor(t, statusPage, []string{})

	require.NoError(t, m.UpdateStatus(context.Background()))

	assert.Empty(t, clicks.all())
	assert.Empty(t, notes.all())
}

func TestUpdateStatus_MissingButtonGivesUp(t *testing.T) {
	m, _, clicks, notes := newStatusMonitor(t, `<html><body><div class="app-wrapper-web"></div></body></html>`, []string{"x"})

	start := time.Now()
	err := m.UpdateStatus(context.Background())

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeElementNotFound, errors.GetCode(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, clicks.all())
	assert.Empty(t, notes.all())
}

func TestUpdateStatus_MissingInputAborts(t *testing.T) {
	markup := `<html><body><div title="Status" id="status-button"></div><button id="save">Save</button></body></html>`
	m, _, clicks, notes := newStatusMonitor(t, markup, []string{"x"})

	err := m.UpdateStatus(context.Background())

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeElementNotFound, errors.GetCode(err))
	assert.Equal(t, []string{"status-button"}, clicks.all())
	assert.Empty(t, notes.all())
}

func TestUpdateStatus_MissingConfirmAborts(t *testing.T) {
	markup := `<html><body><div title="Status" id="status-button"></div>
<div contenteditable="true" id="status-input">click to edit</div><button id="x">Close</button></body></html>`
	m, _, clicks, notes := newStatusMonitor(t, markup, []string{"x"})

	err := m.UpdateStatus(context.Background())

	require.Error(t, err)
	assert.Equal(t, []string{"status-button"}, clicks.all())
	assert.Empty(t, notes.all())
}

func TestStatusDriver_RunsOnActivation(t *testing.T) {
	p := htmlpage.MustNew(statusPage)
	clicks := &clickLog{}
	p.OnClick(clicks.record)

	m := New(p, &toasts{}, quietLogger(), testConfig())
	m.SetBackend(newFakeBackend(onlyFeatures("autoStatus")))
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Eventually(t, func() bool {
		return len(clicks.all()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.Running("autoStatus"))
}

func TestReload_RestartsStatusDriverOnIntervalChange(t *testing.T) {
	p := htmlpage.MustNew(statusPage)
	clicks := &clickLog{}
	p.OnClick(clicks.record)

	backend := newFakeBackend(onlyFeatures("autoStatus"))
	m := New(p, &toasts{}, quietLogger(), testConfig())
	m.SetBackend(backend)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.Eventually(t, func() bool {
		return len(clicks.all()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Same interval: the running driver is kept.
	require.NoError(t, m.Reload(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, clicks.all(), 2)

	backend.mu.Lock()
	backend.settings.AutoStatus.UpdateIntervalHours = 6
	backend.mu.Unlock()
	require.NoError(t, m.Reload(context.Background()))

	// A restarted driver runs a cycle straight away.
	require.Eventually(t, func() bool {
		return len(clicks.all()) > 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "status-button", clicks.all()[2])
	assert.True(t, m.Running("autoStatus"))
	m.mu.Lock()
	assert.Equal(t, 6, m.statusHours)
	m.mu.Unlock()
}
