package intercept

import (
	"context"

	"waenhancer/internal/constants"
	"waenhancer/internal/metrics"
	"waenhancer/internal/privacy"

	"github.com/sirupsen/logrus"
)

// RequestDescriptor identifies an outbound HTTP request.
type RequestDescriptor struct {
	Method string
	URL    string
}

// RequestIssuer issues an outbound request.
type RequestIssuer interface {
	Issue(ctx context.Context, req RequestDescriptor) error
}

// IssuerFunc adapts a function to RequestIssuer.
type IssuerFunc func(ctx context.Context, req RequestDescriptor) error

func (fn IssuerFunc) Issue(ctx context.Context, req RequestDescriptor) error {
	return fn(ctx, req)
}

// Classifier reports whether a request may go out.
type Classifier func(req RequestDescriptor) bool

// ReadReceiptClassifier denies any request whose URL contains a read-receipt marker.
func ReadReceiptClassifier(markers []string) Classifier {
	markers = Markers(markers, constants.DefaultReadReceiptMarker)
	return func(req RequestDescriptor) bool {
		return !containsAny(req.URL, markers)
	}
}

// RequestFilter never issues requests its classifier denies.
type RequestFilter struct {
	next        RequestIssuer
	shouldAllow Classifier
	logger      *logrus.Logger
}

// NewRequestFilter wraps next. A nil classifier uses the default read-receipt marker.
func NewRequestFilter(next RequestIssuer, shouldAllow Classifier, logger *logrus.Logger) *RequestFilter {
	if shouldAllow == nil {
		shouldAllow = ReadReceiptClassifier(nil)
	}
	return &RequestFilter{next: next, shouldAllow: shouldAllow, logger: logger}
}

func (r *RequestFilter) Issue(ctx context.Context, req RequestDescriptor) error {
	if !r.shouldAllow(req) {
		metrics.SuppressedPayloads.WithLabelValues("http").Inc()
		r.logger.WithFields(logrus.Fields{
			"method": req.Method,
			"url":    privacy.MaskURL(req.URL),
		}).Debug("Suppressed outbound request")
		return nil
	}
	metrics.ForwardedPayloads.WithLabelValues("http").Inc()
	return r.next.Issue(ctx, req)
}
