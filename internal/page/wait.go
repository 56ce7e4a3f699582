package page

import (
	"context"
	stderrors "errors"
	"time"

	"waenhancer/internal/constants"
	"waenhancer/internal/errors"
	"waenhancer/internal/metrics"
)

// WaitOptions controls the polling of WaitForElement.
type WaitOptions struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultWaitOptions polls every 300ms up to 100 times.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		Interval:    constants.DefaultWaitIntervalMs * time.Millisecond,
		MaxAttempts: constants.DefaultWaitMaxAttempts,
	}
}

// Normalized fills unset fields with the defaults.
func (o WaitOptions) Normalized() WaitOptions {
	d := DefaultWaitOptions()
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	return o
}

// WaitForElement polls adapter for selector. It makes at most MaxAttempts queries,
// Interval apart, and returns an ELEMENT_NOT_FOUND error once they are exhausted.
// Context cancellation is returned as is.
func WaitForElement(ctx context.Context, adapter Adapter, selector string, opts WaitOptions) (Element, error) {
	opts = opts.Normalized()

	for attempt := 1; ; attempt++ {
		el, err := adapter.Query(ctx, selector)
		if err == nil {
			return el, nil
		}
		if !stderrors.Is(err, ErrNotFound) {
			return nil, err
		}
		if attempt >= opts.MaxAttempts {
			break
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	metrics.ElementWaitTimeouts.WithLabelValues(selector).Inc()
	return nil, errors.NewElementNotFoundError(selector, opts.MaxAttempts, opts.Interval)
}
