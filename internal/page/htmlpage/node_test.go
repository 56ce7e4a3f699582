package htmlpage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const fixture = `<html><body>
<div class="app-wrapper-web">
  <div id="main">
    <div class="message-in focusable" data-id="m1">
      <div class="copyable-text" data-pre-plain-text="[10:01, 1/2/2024] Alice: ">
        <span>hello</span>
      </div>
    </div>
    <div class="message-out" data-id="m2"><span>bye</span></div>
  </div>
  <footer><div contenteditable="true" title='Type a message'></div></footer>
</div>
</body></html>`

func parse(t *testing.T) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(fixture))
	require.NoError(t, err)
	return doc
}

func TestQuery_InvalidSelector(t *testing.T) {
	root := &Node{n: parse(t)}
	for _, s := range []string{"", "[", `[a="x]`, "div >", ".", "#"} {
		_, ok := root.Query(s)
		assert.False(t, ok, "selector %q", s)
		assert.Empty(t, root.QueryAll(s), "selector %q", s)
		assert.False(t, root.Matches(s), "selector %q", s)
	}
}

func TestNode_QueryAll(t *testing.T) {
	root := &Node{n: parse(t)}
	count := func(sel string) int {
		return len(root.QueryAll(sel))
	}

	assert.Equal(t, 1, count(".app-wrapper-web"))
	assert.Equal(t, 2, count("[data-id]"))
	assert.Equal(t, 1, count(`[data-id="m2"]`))
	assert.Equal(t, 1, count(`[data-id='m2']`))
	assert.Equal(t, 1, count(`[data-id=m2]`))
	assert.Equal(t, 2, count(".message-in, .message-out"))
	assert.Equal(t, 1, count(".message-in.focusable"))
	assert.Equal(t, 1, count(`footer div[contenteditable="true"]`))
	assert.Equal(t, 1, count(`div[title="Type a message"]`))
	assert.Equal(t, 1, count("#main > .message-out"))
	assert.Equal(t, 0, count(".app-wrapper-web > .message-in"))
	assert.Equal(t, 2, count(".app-wrapper-web .message-in span, .message-out span"))
	assert.Equal(t, 0, count("div.missing"))
	assert.Equal(t, 1, count("footer"))
}

func TestSnapshot_DetachedFromDocument(t *testing.T) {
	doc := &Node{n: parse(t)}
	found, ok := doc.Query(`[data-id="m1"]`)
	require.True(t, ok)
	msg := snapshot(found.(*Node).n)

	span, ok := msg.Query("span")
	require.True(t, ok)
	assert.True(t, span.Matches(".message-in span"))
	assert.False(t, span.Matches(".app-wrapper-web span"))

	_, ok = span.Closest(".app-wrapper-web")
	assert.False(t, ok)
	text, ok := span.Closest(".copyable-text")
	require.True(t, ok)
	pre, _ := text.Attr("data-pre-plain-text")
	assert.Equal(t, "[10:01, 1/2/2024] Alice: ", pre)
}

func TestClosest_StopsAtTop(t *testing.T) {
	doc := parse(t)
	msg, ok := (&Node{n: doc}).Query(`[data-id="m1"]`)
	require.True(t, ok)
	// Shares the document tree but is bounded at the message element.
	bounded := &Node{n: msg.(*Node).n, top: msg.(*Node).n}
	span, ok := bounded.Query("span")
	require.True(t, ok)

	_, ok = span.Closest("#main")
	assert.False(t, ok)
	got, ok := span.Closest(".message-in")
	require.True(t, ok)
	id, _ := got.Attr("data-id")
	assert.Equal(t, "m1", id)
}
