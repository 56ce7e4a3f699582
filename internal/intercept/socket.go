// Package intercept holds the decorators that sit between the host page and the
// network. They are composed around the real transports when a page is set up.
package intercept

import (
	"context"
	"strings"

	"waenhancer/internal/constants"
	"waenhancer/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Frame is one outbound websocket frame. Binary frames carry no text.
type Frame struct {
	Seq    int64
	Text   string
	Binary bool
}

// SocketSender delivers an outbound frame.
type SocketSender interface {
	Send(ctx context.Context, f Frame) error
}

// SenderFunc adapts a function to SocketSender.
type SenderFunc func(ctx context.Context, f Frame) error

func (fn SenderFunc) Send(ctx context.Context, f Frame) error {
	return fn(ctx, f)
}

// PresenceFilter drops text frames that mention any presence marker.
type PresenceFilter struct {
	next    SocketSender
	markers []string
	logger  *logrus.Logger
}

// NewPresenceFilter wraps next. Empty markers fall back to the default marker.
func NewPresenceFilter(next SocketSender, markers []string, logger *logrus.Logger) *PresenceFilter {
	return &PresenceFilter{
		next:    next,
		markers: Markers(markers, constants.DefaultPresenceMarker),
		logger:  logger,
	}
}

// Send swallows presence frames and hands everything else to the wrapped sender once.
func (p *PresenceFilter) Send(ctx context.Context, f Frame) error {
	if !f.Binary && containsAny(f.Text, p.markers) {
		metrics.SuppressedPayloads.WithLabelValues("socket").Inc()
		p.logger.WithFields(logrus.Fields{
			"seq":  f.Seq,
			"size": len(f.Text),
		}).Debug("Suppressed presence frame")
		return nil
	}
	metrics.ForwardedPayloads.WithLabelValues("socket").Inc()
	return p.next.Send(ctx, f)
}

// Markers returns the non-empty entries of markers, or fallback when none remain.
func Markers(markers []string, fallback string) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		if m != "" {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		out = append(out, fallback)
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
