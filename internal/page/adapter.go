// Package page abstracts the host page so that monitor features can run against a
// real browser or an in-memory document.
package page

import (
	"context"
	stderrors "errors"
)

// ErrNotFound is returned by Adapter.Query when nothing matches.
var ErrNotFound = stderrors.New("element not found")

// Node is a read-only view of a DOM subtree. Removed and added subtrees reported by
// Observe are snapshots: Closest never leaves the subtree they were taken from.
type Node interface {
	Attr(name string) (string, bool)
	Text() string
	Matches(selector string) bool
	Query(selector string) (Node, bool)
	QueryAll(selector string) []Node
	Closest(selector string) (Node, bool)
}

// Element is a handle on a live element of the page.
type Element interface {
	Attr(ctx context.Context, name string) (string, bool, error)
	Text(ctx context.Context) (string, error)
	Click(ctx context.Context) error
	// SetText replaces the element content and fires an input event.
	SetText(ctx context.Context, text string) error
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}

// Mutation is one batch of child-list changes under an observed root.
type Mutation struct {
	Added   []Node
	Removed []Node
}

// Adapter is everything the monitor needs from the page.
type Adapter interface {
	Query(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// Observe reports child-list mutations in the subtree of the first element
	// matching selector until stop is called or ctx ends.
	Observe(ctx context.Context, selector string, fn func(Mutation)) (stop func(), err error)
}

// Notifier shows a transient message to the user.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, message string)

func (fn NotifierFunc) Notify(ctx context.Context, message string) {
	fn(ctx, message)
}
