package rodpage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"waenhancer/internal/constants"
	"waenhancer/internal/intercept"
	"waenhancer/internal/page"
	"waenhancer/internal/page/htmlpage"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// Options configures a Page.
type Options struct {
	ObservePoll   time.Duration
	ToastDuration time.Duration
	// WrapSockets decorates the sender that releases parked websocket frames.
	WrapSockets func(intercept.SocketSender) intercept.SocketSender
	// WrapRequests decorates the issuer that continues paused HTTP requests.
	WrapRequests func(intercept.RequestIssuer) intercept.RequestIssuer
}

func (o Options) withDefaults() Options {
	if o.ObservePoll <= 0 {
		o.ObservePoll = constants.DefaultObserverPollMs * time.Millisecond
	}
	if o.ToastDuration <= 0 {
		o.ToastDuration = constants.DefaultToastDurationMs * time.Millisecond
	}
	return o
}

// Page is a page.Adapter and page.Notifier backed by a browser tab.
type Page struct {
	page   *rod.Page
	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Logger
	opts   Options

	router    *rod.HijackRouter
	observeID atomic.Int64
	wg        sync.WaitGroup
}

var (
	_ page.Adapter  = (*Page)(nil)
	_ page.Notifier = (*Page)(nil)
)

// Open creates a tab, installs the interceptors, and only then navigates to url so
// that no host script runs before them.
func Open(ctx context.Context, browser *rod.Browser, url string, logger *logrus.Logger, opts Options) (*Page, error) {
	opts = opts.withDefaults()
	rp, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &Page{page: rp, ctx: pctx, cancel: cancel, logger: logger, opts: opts}

	if err := p.installSocketBridge(); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.installRequestHijack(); err != nil {
		p.Close()
		return nil, err
	}

	if err := rp.Context(ctx).Navigate(url); err != nil {
		p.Close()
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}
	logger.WithField("url", url).Info("Page opened")
	return p, nil
}

// Done is closed when the page is closed.
func (p *Page) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Close stops interception and closes the tab.
func (p *Page) Close() {
	p.cancel()
	if p.router != nil {
		_ = p.router.Stop()
	}
	_ = p.page.Close()
	p.wg.Wait()
}

func (p *Page) Query(ctx context.Context, selector string) (page.Element, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if !has {
		return nil, page.ErrNotFound
	}
	return &element{el: el}, nil
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query all %q: %w", selector, err)
	}
	return wrapElements(els), nil
}

// Observe installs a MutationObserver in the page and polls its buffer. Added and
// removed subtrees arrive as serialized markup and are parsed into snapshots.
func (p *Page) Observe(ctx context.Context, selector string, fn func(page.Mutation)) (func(), error) {
	id := p.observeID.Add(1)
	res, err := p.page.Context(ctx).Evaluate(rod.Eval(installObserver, id, selector))
	if err != nil {
		return nil, fmt.Errorf("install observer: %w", err)
	}
	if !res.Value.Bool() {
		return nil, page.ErrNotFound
	}

	octx, cancel := context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollObserver(octx, id, fn)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			_, _ = p.page.Evaluate(rod.Eval(removeObserver, id))
		})
	}
	return stop, nil
}

func (p *Page) pollObserver(ctx context.Context, id int64, fn func(page.Mutation)) {
	ticker := time.NewTicker(p.opts.ObservePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		}

		res, err := p.page.Context(ctx).Evaluate(rod.Eval(drainObserver, id))
		if err != nil {
			if ctx.Err() == nil {
				p.logger.WithError(err).Debug("Failed to drain mutation buffer")
			}
			continue
		}
		if res.Value.Nil() {
			p.logger.WithField("observer", id).Warn("Mutation observer lost, page was probably reloaded")
			return
		}
		mutations, err := decodeMutations([]byte(res.Value.JSON("", "")))
		if err != nil {
			p.logger.WithError(err).Warn("Failed to decode mutation batch")
			continue
		}
		for _, m := range mutations {
			fn(m)
		}
	}
}

type rawMutation struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

func decodeMutations(data []byte) ([]page.Mutation, error) {
	var batch []rawMutation
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	out := make([]page.Mutation, 0, len(batch))
	for _, raw := range batch {
		var m page.Mutation
		for _, markup := range raw.Added {
			m.Added = appendParsed(m.Added, markup)
		}
		for _, markup := range raw.Removed {
			m.Removed = appendParsed(m.Removed, markup)
		}
		if len(m.Added) > 0 || len(m.Removed) > 0 {
			out = append(out, m)
		}
	}
	return out, nil
}

func appendParsed(dst []page.Node, markup string) []page.Node {
	nodes, err := htmlpage.ParseFragment(markup)
	if err != nil {
		return dst
	}
	for _, n := range nodes {
		dst = append(dst, n)
	}
	return dst
}

// Notify shows a toast in the page.
func (p *Page) Notify(ctx context.Context, message string) {
	ms := p.opts.ToastDuration.Milliseconds()
	if _, err := p.page.Context(ctx).Evaluate(rod.Eval(showToast, message, ms)); err != nil {
		p.logger.WithError(err).Debug("Failed to show toast")
	}
}
