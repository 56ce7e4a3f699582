// Package monitor runs the page-side features: message capture, presence
// suppression, status rotation, inbound watching, and background commands.
package monitor

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"waenhancer/internal/constants"
	"waenhancer/internal/errors"
	"waenhancer/internal/features"
	"waenhancer/internal/intercept"
	"waenhancer/internal/models"
	"waenhancer/internal/page"
	"waenhancer/pkg/protocol"

	"github.com/sirupsen/logrus"
)

// ErrNoBackend is returned while the monitor has no connection to the background.
var ErrNoBackend = stderrors.New("background process not connected")

// Backend is the monitor's view of the background process.
type Backend interface {
	Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	Notify(ctx context.Context, req *protocol.Request) error
}

type Config struct {
	Wait          page.WaitOptions
	StatusSettle  time.Duration
	PreviewLength int
	// Interception is switched on while invisible mode is active.
	Interception *intercept.Switch
	// DownloadDir receives saved status media.
	DownloadDir string
	HTTPClient  *http.Client
	// Pick returns an index in [0, n). Defaults to a uniform random pick.
	Pick func(n int) int
	Now  func() time.Time
}

func (c Config) withDefaults() Config {
	c.Wait = c.Wait.Normalized()
	if c.StatusSettle <= 0 {
		c.StatusSettle = constants.DefaultStatusSettleMs * time.Millisecond
	}
	if c.PreviewLength <= 0 {
		c.PreviewLength = constants.DefaultPreviewLength
	}
	if c.Interception == nil {
		c.Interception = &intercept.Switch{}
	}
	if c.DownloadDir == "" {
		c.DownloadDir = constants.DefaultDownloadDir
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: constants.DefaultDownloadTimeoutSec * time.Second}
	}
	if c.Pick == nil {
		c.Pick = rand.IntN
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type Monitor struct {
	adapter  page.Adapter
	notifier page.Notifier
	logger   *logrus.Logger
	errLog   *errors.Logger
	cfg      Config
	flags    *features.FlagManager

	mu       sync.Mutex
	backend  Backend
	settings *models.Settings
	running  map[string]context.CancelFunc
	captured map[string]models.CapturedMessage
	inbound  map[string]struct{}

	// inbound ids, oldest first. Capped at MaxInboundTracked.
	inboundOrder []string
	// interval the running status driver was started with
	statusHours int

	root       context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

func New(adapter page.Adapter, notifier page.Notifier, logger *logrus.Logger, cfg Config) *Monitor {
	return &Monitor{
		adapter:  adapter,
		notifier: notifier,
		logger:   logger,
		errLog:   errors.NewLogger(logger),
		cfg:      cfg.withDefaults(),
		flags:    features.NewFlagManager(),
		settings: models.DefaultSettings(),
		running:  make(map[string]context.CancelFunc),
		captured: make(map[string]models.CapturedMessage),
		inbound:  make(map[string]struct{}),
	}
}

// SetBackend swaps the connection used for requests. nil disconnects.
func (m *Monitor) SetBackend(b Backend) {
	m.mu.Lock()
	m.backend = b
	m.mu.Unlock()
}

func (m *Monitor) call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	m.mu.Lock()
	b := m.backend
	m.mu.Unlock()
	if b == nil {
		return nil, ErrNoBackend
	}
	resp, err := b.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return resp, err
	}
	return resp, nil
}

func (m *Monitor) notify(ctx context.Context, req *protocol.Request) error {
	m.mu.Lock()
	b := m.backend
	m.mu.Unlock()
	if b == nil {
		return ErrNoBackend
	}
	return b.Notify(ctx, req)
}

// Start loads settings from the background and activates the enabled features.
// Features run until Stop or until ctx ends.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.root != nil {
		m.mu.Unlock()
		return stderrors.New("monitor already started")
	}
	m.root, m.rootCancel = context.WithCancel(ctx)
	m.mu.Unlock()

	return m.Reload(ctx)
}

// Reload refetches settings and brings the running features in line with them.
// Without a backend the defaults are used.
func (m *Monitor) Reload(ctx context.Context) error {
	settings, err := m.refreshSettings(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Using cached settings")
	}

	m.flags.LoadFromSettings(settings)
	if overrides := m.flags.LoadFromEnvironment(); len(overrides) > 0 {
		m.logger.WithField("overrides", overrides).Info("Applied feature overrides from environment")
	}

	m.mu.Lock()
	hours := m.statusHours
	m.mu.Unlock()
	if want := statusIntervalHours(settings); m.Running(features.FlagAutoStatus) && hours != want {
		m.logger.WithFields(logrus.Fields{"from_hours": hours, "to_hours": want}).Info("Status interval changed, restarting driver")
		m.deactivate(features.FlagAutoStatus)
	}
	m.reconcile()
	return err
}

// Stop deactivates every feature and waits for them to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.rootCancel
	for name, c := range m.running {
		c()
		delete(m.running, name)
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.cfg.Interception.Set(false)
	m.wg.Wait()
}

// Settings returns the last settings seen.
func (m *Monitor) Settings() *models.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Clone()
}

// Flags exposes the feature state.
func (m *Monitor) Flags() *features.FlagManager {
	return m.flags
}

func (m *Monitor) refreshSettings(ctx context.Context) (*models.Settings, error) {
	resp, err := m.call(ctx, &protocol.Request{Type: protocol.TypeGetSettings})
	if err == nil && resp.Settings == nil {
		err = errors.NewFormatError("background", "getSettings returned no settings", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		return m.settings.Clone(), err
	}
	resp.Settings.Normalize()
	m.settings = resp.Settings
	return m.settings.Clone(), nil
}

// SetFeature turns a feature on or off at runtime.
func (m *Monitor) SetFeature(name string, enabled bool) error {
	if _, err := m.flags.Set(name, enabled); err != nil {
		return errors.NewValidationError("feature", name, "unknown feature")
	}
	m.reconcile()
	m.logger.WithFields(logrus.Fields{"feature": name, "enabled": enabled}).Info("Feature toggled")
	return nil
}

func (m *Monitor) reconcile() {
	for _, flag := range m.flags.ListFlags() {
		if flag.Enabled {
			m.activate(flag.Name)
		} else {
			m.deactivate(flag.Name)
		}
	}
}

func (m *Monitor) runner(name string) func(context.Context) {
	switch name {
	case features.FlagAntiDelete:
		return m.runCapture
	case features.FlagAutoStatus:
		return m.runStatusDriver
	case features.FlagAutoReply:
		return m.runInboundWatcher
	}
	return nil
}

func (m *Monitor) activate(name string) {
	m.mu.Lock()
	if m.root == nil {
		m.mu.Unlock()
		return
	}
	if _, running := m.running[name]; running {
		m.mu.Unlock()
		return
	}
	fctx, cancel := context.WithCancel(m.root)
	m.running[name] = cancel
	if name == features.FlagAutoStatus {
		m.statusHours = statusIntervalHours(m.settings)
	}
	m.mu.Unlock()

	if name == features.FlagInvisibleMode {
		m.cfg.Interception.Set(true)
	}
	if run := m.runner(name); run != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			run(fctx)
		}()
	}
	m.logger.WithField("feature", name).Debug("Feature activated")
}

func (m *Monitor) deactivate(name string) {
	m.mu.Lock()
	cancel, running := m.running[name]
	delete(m.running, name)
	m.mu.Unlock()
	if !running {
		return
	}

	cancel()
	if name == features.FlagInvisibleMode {
		m.cfg.Interception.Set(false)
	}
	m.logger.WithField("feature", name).Debug("Feature deactivated")
}

// Running reports whether a feature is active.
func (m *Monitor) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[name]
	return ok
}

func (m *Monitor) toast(ctx context.Context, message string) {
	if m.notifier != nil {
		m.notifier.Notify(ctx, message)
	}
}

// sleep waits d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
