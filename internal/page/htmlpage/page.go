package htmlpage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"waenhancer/internal/page"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Page is a mutable in-memory document. Mutations made through Append and Remove are
// delivered to observers synchronously, after the document lock is released.
type Page struct {
	mu        sync.Mutex
	doc       *html.Node
	observers map[int]*observer
	nextID    int
	onClick   func(el page.Node)
	onInput   func(el page.Node, text string)
}

type observer struct {
	root *html.Node
	fn   func(page.Mutation)
}

var _ page.Adapter = (*Page)(nil)

// New parses a full document.
func New(markup string) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Page{doc: doc, observers: make(map[int]*observer)}, nil
}

// MustNew is New that panics on error.
func MustNew(markup string) *Page {
	p, err := New(markup)
	if err != nil {
		panic(err)
	}
	return p
}

// OnClick registers a hook run after every Element.Click.
func (p *Page) OnClick(fn func(el page.Node)) {
	p.mu.Lock()
	p.onClick = fn
	p.mu.Unlock()
}

// OnInput registers a hook run after every Element.SetText.
func (p *Page) OnInput(fn func(el page.Node, text string)) {
	p.mu.Lock()
	p.onInput = fn
	p.mu.Unlock()
}

func (p *Page) Query(_ context.Context, selector string) (page.Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := cascadia.Query(p.doc, sel); n != nil {
		return &element{page: p, n: n}, nil
	}
	return nil, page.ErrNotFound
}

func (p *Page) QueryAll(_ context.Context, selector string) ([]page.Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wrap(cascadia.QueryAll(p.doc, sel)), nil
}

func (p *Page) Observe(ctx context.Context, selector string, fn func(page.Mutation)) (func(), error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	root := cascadia.Query(p.doc, sel)
	if root == nil {
		p.mu.Unlock()
		return nil, page.ErrNotFound
	}
	id := p.nextID
	p.nextID++
	p.observers[id] = &observer{root: root, fn: fn}
	p.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	stop := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return stop, nil
}

// Append parses markup as children of the first element matching parentSelector.
func (p *Page) Append(parentSelector, markup string) error {
	sel, err := cascadia.Compile(parentSelector)
	if err != nil {
		return err
	}

	p.mu.Lock()
	parent := cascadia.Query(p.doc, sel)
	if parent == nil {
		p.mu.Unlock()
		return page.ErrNotFound
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), &html.Node{
		Type: html.ElementNode, Data: parent.Data, DataAtom: parent.DataAtom,
	})
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to parse fragment: %w", err)
	}
	var added []page.Node
	for _, n := range nodes {
		parent.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, snapshot(n))
		}
	}
	targets := p.observersOf(parent)
	p.mu.Unlock()

	deliver(targets, page.Mutation{Added: added})
	return nil
}

// Remove detaches every element matching selector.
func (p *Page) Remove(selector string) (int, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	matches := cascadia.QueryAll(p.doc, sel)
	type removal struct {
		targets []*observer
		node    page.Node
	}
	var removals []removal
	for _, n := range matches {
		if !p.attached(n) {
			// went out with an ancestor that also matched
			continue
		}
		targets := p.observersOf(n.Parent)
		n.Parent.RemoveChild(n)
		removals = append(removals, removal{targets: targets, node: snapshot(n)})
	}
	p.mu.Unlock()

	for _, r := range removals {
		deliver(r.targets, page.Mutation{Removed: []page.Node{r.node}})
	}
	return len(removals), nil
}

// HTML renders the current document.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b strings.Builder
	_ = html.Render(&b, p.doc)
	return b.String()
}

// observersOf returns observers whose root is n or an ancestor of n. Caller holds mu.
func (p *Page) observersOf(n *html.Node) []*observer {
	var out []*observer
	for _, o := range p.observers {
		for a := n; a != nil; a = a.Parent {
			if a == o.root {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

func (p *Page) attached(n *html.Node) bool {
	for a := n; a != nil; a = a.Parent {
		if a == p.doc {
			return true
		}
	}
	return false
}

func (p *Page) wrap(nodes []*html.Node) []page.Element {
	out := make([]page.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{page: p, n: n})
	}
	return out
}

func deliver(targets []*observer, m page.Mutation) {
	for _, o := range targets {
		o.fn(m)
	}
}

// element is a live handle on a node of a Page.
type element struct {
	page *Page
	n    *html.Node
}

func (e *element) Attr(_ context.Context, name string) (string, bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	v, ok := attr(e.n, strings.ToLower(name))
	return v, ok, nil
}

func (e *element) Text(_ context.Context) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return textContent(e.n), nil
}

func (e *element) QueryAll(_ context.Context, selector string) ([]page.Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.page.wrap(cascadia.QueryAll(e.n, sel)), nil
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.page.mu.Lock()
	hook := e.page.onClick
	snap := snapshot(e.n)
	e.page.mu.Unlock()
	if hook != nil {
		hook(snap)
	}
	return nil
}

func (e *element) SetText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.page.mu.Lock()
	for c := e.n.FirstChild; c != nil; c = e.n.FirstChild {
		e.n.RemoveChild(c)
	}
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	hook := e.page.onInput
	snap := snapshot(e.n)
	e.page.mu.Unlock()
	if hook != nil {
		hook(snap, text)
	}
	return nil
}
