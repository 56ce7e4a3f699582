package monitor

import (
	"context"
	"sync"
	"time"

	"waenhancer/internal/intercept"
	"waenhancer/internal/models"
	"waenhancer/internal/page"
	"waenhancer/internal/page/htmlpage"
	"waenhancer/pkg/protocol"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

type fakeBackend struct {
	mu       sync.Mutex
	settings *models.Settings
	calls    []*protocol.Request
	notes    []*protocol.Request
	respond  func(req *protocol.Request) *protocol.Response
}

func newFakeBackend(s *models.Settings) *fakeBackend {
	if s == nil {
		s = models.DefaultSettings()
	}
	return &fakeBackend{settings: s}
}

func (f *fakeBackend) Call(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	respond := f.respond
	settings := f.settings.Clone()
	f.mu.Unlock()

	if respond != nil {
		if resp := respond(req); resp != nil {
			return resp, nil
		}
	}
	switch req.Type {
	case protocol.TypeGetSettings:
		return &protocol.Response{Success: true, Settings: settings}, nil
	case protocol.TypeGetDeletedMessages:
		return &protocol.Response{Success: true, Messages: map[string]models.CapturedMessage{}}, nil
	}
	return protocol.OK(), nil
}

func (f *fakeBackend) Notify(_ context.Context, req *protocol.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, req)
	return nil
}

func (f *fakeBackend) callsOf(t protocol.MessageType) []*protocol.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*protocol.Request
	for _, c := range f.calls {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBackend) notifications() []*protocol.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Request(nil), f.notes...)
}

type toasts struct {
	mu       sync.Mutex
	messages []string
}

func (t *toasts) Notify(_ context.Context, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, message)
}

func (t *toasts) all() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.messages...)
}

// observedPage signals every successful Observe call.
type observedPage struct {
	*htmlpage.Page
	observed chan string
}

func newObservedPage(markup string) *observedPage {
	return &observedPage{Page: htmlpage.MustNew(markup), observed: make(chan string, 8)}
}

func (o *observedPage) Observe(ctx context.Context, selector string, fn func(page.Mutation)) (func(), error) {
	stop, err := o.Page.Observe(ctx, selector, fn)
	if err == nil {
		o.observed <- selector
	}
	return stop, err
}

func testConfig() Config {
	return Config{
		Wait:         page.WaitOptions{Interval: time.Millisecond, MaxAttempts: 3},
		StatusSettle: time.Millisecond,
		Interception: &intercept.Switch{},
		Pick:         func(int) int { return 0 },
		Now:          func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

// onlyFeatures returns settings with every monitor feature off except the named ones.
func onlyFeatures(names ...string) *models.Settings {
	s := models.DefaultSettings()
	s.AntiDeleteEnabled = false
	s.InvisibleModeEnabled = false
	s.AutoStatus.Enabled = false
	s.AutoReplyEnabled = false
	s.AIIntegrationEnabled = false
	s.StatusReactionsEnabled = false
	for _, n := range names {
		switch n {
		case "antiDelete":
			s.AntiDeleteEnabled = true
		case "invisibleMode":
			s.InvisibleModeEnabled = true
		case "autoStatus":
			s.AutoStatus.Enabled = true
		case "autoReply":
			s.AutoReplyEnabled = true
		case "aiAssistant":
			s.AIIntegrationEnabled = true
		case "statusReactions":
			s.StatusReactionsEnabled = true
		}
	}
	return s
}
