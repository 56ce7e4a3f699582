package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableDBError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{errors.New("disk I/O error"), true},
		{errors.New("UNIQUE constraint failed"), false},
		{errors.New("no such table: settings"), false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableDBError(tt.err), "%v", tt.err)
	}
}

func TestRetryableDBOperation_RetriesLocked(t *testing.T) {
	calls := 0
	err := retryableDBOperationNoReturn(context.Background(), func() error {
		calls++
		if calls == 1 {
			return errors.New("database is locked")
		}
		return nil
	}, "op")

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryableDBOperation_NonRetryable(t *testing.T) {
	calls := 0
	err := retryableDBOperationNoReturn(context.Background(), func() error {
		calls++
		return errors.New("syntax error")
	}, "op")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "non-retryable")
	assert.Equal(t, 1, calls)
}

func TestRetryableDBOperation_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryableDBOperationNoReturn(ctx, func() error { return nil }, "op")
	assert.ErrorIs(t, err, context.Canceled)
}
