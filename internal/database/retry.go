package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"waenhancer/internal/constants"
)

// retryableDBOperationNoReturn runs operation, retrying transient sqlite failures.
func retryableDBOperationNoReturn(ctx context.Context, operation func() error, operationName string) error {
	var lastErr error

	maxAttempts := constants.DefaultDatabaseRetryAttempts
	initialBackoff := time.Duration(constants.DefaultBackoffInitialMs) * time.Millisecond
	maxBackoff := time.Duration(constants.DefaultBackoffMaxSec) * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableDBError(err) {
			return fmt.Errorf("%s failed (non-retryable): %w", operationName, err)
		}
		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * initialBackoff
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxAttempts, lastErr)
}

// isRetryableDBError reports lock contention and transient I/O failures.
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := err.Error()
	for _, transient := range []string{"database is locked", "database table is locked", "disk I/O error", "SQLITE_BUSY"} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}
