// Package htmlpage is an in-memory page.Adapter over golang.org/x/net/html. It backs
// the monitor tests and parses subtrees serialized out of the live browser.
package htmlpage

import (
	"strings"

	"waenhancer/internal/page"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Node is a detached, read-only snapshot of an element subtree.
type Node struct {
	n   *html.Node
	top *html.Node
}

var _ page.Node = (*Node)(nil)

func snapshot(n *html.Node) *Node {
	c := clone(n)
	return &Node{n: c, top: c}
}

func (s *Node) Attr(name string) (string, bool) {
	return attr(s.n, strings.ToLower(name))
}

// Text is the concatenated text content of the subtree.
func (s *Node) Text() string {
	return textContent(s.n)
}

func (s *Node) Matches(selector string) bool {
	sel, err := cascadia.Compile(selector)
	return err == nil && sel.Match(s.n)
}

func (s *Node) Query(selector string) (page.Node, bool) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, false
	}
	if found := cascadia.Query(s.n, sel); found != nil {
		return &Node{n: found, top: s.top}, true
	}
	return nil, false
}

func (s *Node) QueryAll(selector string) []page.Node {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil
	}
	var out []page.Node
	for _, found := range cascadia.QueryAll(s.n, sel) {
		out = append(out, &Node{n: found, top: s.top})
	}
	return out
}

func (s *Node) Closest(selector string) (page.Node, bool) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, false
	}
	for n := s.n; n != nil; n = parentElement(n, s.top) {
		if sel.Match(n) {
			return &Node{n: n, top: s.top}, true
		}
	}
	return nil, false
}

// ParseFragment parses serialized markup, such as an element's outerHTML, into
// snapshots of its top-level elements.
func ParseFragment(markup string) ([]*Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, err
	}
	var out []*Node
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, &Node{n: n, top: n})
		}
	}
	return out, nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// parentElement walks up one element, stopping at top.
func parentElement(n, top *html.Node) *html.Node {
	if n == top || n.Parent == nil || n.Parent.Type != html.ElementNode {
		return nil
	}
	return n.Parent
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(clone(child))
	}
	return c
}
