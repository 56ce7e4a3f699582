package intercept

import (
	"context"
	"sync"
	"testing"

	"waenhancer/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

type recordingSender struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *recordingSender) Send(_ context.Context, f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

func TestPresenceFilter_SwallowsPresenceFrames(t *testing.T) {
	under := &recordingSender{}
	filter := NewPresenceFilter(under, nil, quietLogger())
	ctx := context.Background()

	frames := []Frame{
		{Seq: 1, Text: `["action",{"type":"chat"}]`},
		{Seq: 2, Text: `["action",{"type":"presence","state":"available"}]`},
		{Seq: 3, Binary: true},
		{Seq: 4, Text: `["Presence"]`},
		{Seq: 5, Text: `presence`},
		{Seq: 6, Text: `["query","msgs"]`},
	}
	for _, f := range frames {
		require.NoError(t, filter.Send(ctx, f))
	}

	// matching is case sensitive, so "Presence" passes
	require.Len(t, under.frames, 4)
	assert.Equal(t, frames[0], under.frames[0])
	assert.Equal(t, frames[2], under.frames[1])
	assert.Equal(t, frames[3], under.frames[2])
	assert.Equal(t, frames[5], under.frames[3])
}

func TestPresenceFilter_CustomMarkers(t *testing.T) {
	under := &recordingSender{}
	filter := NewPresenceFilter(under, []string{"", "typing", "online"}, quietLogger())

	require.NoError(t, filter.Send(context.Background(), Frame{Text: "user is typing"}))
	require.NoError(t, filter.Send(context.Background(), Frame{Text: "went online"}))
	require.NoError(t, filter.Send(context.Background(), Frame{Text: "presence"}))

	require.Len(t, under.frames, 1)
	assert.Equal(t, "presence", under.frames[0].Text)
}

func TestPresenceFilter_PropagatesSenderError(t *testing.T) {
	filter := NewPresenceFilter(SenderFunc(func(context.Context, Frame) error {
		return assert.AnError
	}), nil, quietLogger())

	assert.ErrorIs(t, filter.Send(context.Background(), Frame{Text: "hello"}), assert.AnError)
	assert.NoError(t, filter.Send(context.Background(), Frame{Text: "presence"}))
}

func TestPresenceFilter_CountsSuppressions(t *testing.T) {
	before := testutil.ToFloat64(metrics.SuppressedPayloads.WithLabelValues("socket"))
	filter := NewPresenceFilter(&recordingSender{}, nil, quietLogger())

	require.NoError(t, filter.Send(context.Background(), Frame{Text: "presence"}))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SuppressedPayloads.WithLabelValues("socket")))
}

func TestReadReceiptClassifier(t *testing.T) {
	allow := ReadReceiptClassifier(nil)

	assert.False(t, allow(RequestDescriptor{Method: "POST", URL: "https://web.whatsapp.com/chat/read"}))
	assert.False(t, allow(RequestDescriptor{Method: "POST", URL: "https://web.whatsapp.com/read?id=1"}))
	assert.True(t, allow(RequestDescriptor{Method: "GET", URL: "https://web.whatsapp.com/img/logo.png"}))
	// substring match, not path-segment match
	assert.False(t, allow(RequestDescriptor{Method: "GET", URL: "https://x.test/readme"}))
}

func TestRequestFilter(t *testing.T) {
	var issued []RequestDescriptor
	next := IssuerFunc(func(_ context.Context, req RequestDescriptor) error {
		issued = append(issued, req)
		return nil
	})
	filter := NewRequestFilter(next, nil, quietLogger())
	ctx := context.Background()

	require.NoError(t, filter.Issue(ctx, RequestDescriptor{Method: "POST", URL: "https://h.test/read"}))
	require.NoError(t, filter.Issue(ctx, RequestDescriptor{Method: "GET", URL: "https://h.test/app.js"}))

	require.Len(t, issued, 1)
	assert.Equal(t, "https://h.test/app.js", issued[0].URL)
}

func TestRequestFilter_CustomClassifier(t *testing.T) {
	calls := 0
	next := IssuerFunc(func(context.Context, RequestDescriptor) error {
		calls++
		return nil
	})
	denyAll := func(RequestDescriptor) bool { return false }
	filter := NewRequestFilter(next, denyAll, quietLogger())

	require.NoError(t, filter.Issue(context.Background(), RequestDescriptor{URL: "https://h.test/"}))
	assert.Zero(t, calls)
}

func TestSwitch(t *testing.T) {
	under := &recordingSender{}
	var sw Switch
	sender := sw.Sockets(NewPresenceFilter(under, nil, quietLogger()), under)
	ctx := context.Background()

	require.NoError(t, sender.Send(ctx, Frame{Seq: 1, Text: "presence"}))
	sw.Set(true)
	require.NoError(t, sender.Send(ctx, Frame{Seq: 2, Text: "presence"}))
	require.NoError(t, sender.Send(ctx, Frame{Seq: 3, Text: "chat"}))
	sw.Set(false)
	require.NoError(t, sender.Send(ctx, Frame{Seq: 4, Text: "presence"}))

	require.Len(t, under.frames, 3)
	assert.Equal(t, []int64{1, 3, 4}, []int64{under.frames[0].Seq, under.frames[1].Seq, under.frames[2].Seq})

	issued := 0
	direct := IssuerFunc(func(context.Context, RequestDescriptor) error { issued++; return nil })
	issuer := sw.Requests(NewRequestFilter(direct, nil, quietLogger()), direct)
	require.NoError(t, issuer.Issue(ctx, RequestDescriptor{URL: "https://h.test/read"}))
	sw.Set(true)
	require.NoError(t, issuer.Issue(ctx, RequestDescriptor{URL: "https://h.test/read"}))
	assert.Equal(t, 1, issued)
}
