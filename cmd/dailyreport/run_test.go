package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2026, 2, 10, 9, 0, 0, 0, loc), time.Date(2026, 2, 10, 11, 0, 0, 0, loc)},
		{time.Date(2026, 2, 10, 11, 0, 0, 0, loc), time.Date(2026, 2, 11, 11, 0, 0, 0, loc)},
		{time.Date(2026, 2, 10, 23, 59, 0, 0, loc), time.Date(2026, 2, 11, 11, 0, 0, 0, loc)},
		{time.Date(2026, 2, 28, 12, 0, 0, 0, loc), time.Date(2026, 3, 1, 11, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextRun(tt.now, 11, 0), tt.now.String())
	}
}

func TestRunWithRetryStopsAfterRetries(t *testing.T) {
	calls := 0
	err := runWithRetry(retryPolicy(context.Background(), 2, time.Millisecond), func() error {
		calls++
		return errors.New("clickhouse unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunWithRetrySucceeds(t *testing.T) {
	calls := 0
	err := runWithRetry(retryPolicy(context.Background(), 2, time.Millisecond), func() error {
		calls++
		if calls < 2 {
			return errors.New("flood wait")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := runWithRetry(retryPolicy(ctx, 5, time.Millisecond), func() error {
		calls++
		cancel()
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))
	assert.True(t, l.Core().Enabled(1))

	_, err = newLogger("loud", false)
	assert.Error(t, err)

	l, err = newLogger("loud", true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(-1))
}
