// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package sync2_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"soyuz.io/soyuz/internal/sync2"
)

func TestCycle_Basic(t *testing.T) {
	t.Parallel()

	var count int64
	cycle := sync2.NewCycle(time.Hour)

	done := make(chan error, 1)
	go func() {
		done <- cycle.Run(context.Background(), func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
	}()

	// Run executes the function once immediately; TriggerWait forces and
	// waits for another execution.
	cycle.TriggerWait()
	require.GreaterOrEqual(t, atomic.LoadInt64(&count), int64(2))

	cycle.Close()
	require.NoError(t, <-done)
}

func TestCycle_StopsOnError(t *testing.T) {
	t.Parallel()

	expected := context.DeadlineExceeded
	cycle := sync2.NewCycle(time.Millisecond)

	err := cycle.Run(context.Background(), func(ctx context.Context) error {
		return expected
	})
	require.Equal(t, expected, err)
	cycle.Close()
}

func TestCycle_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cycle := sync2.NewCycle(time.Hour)

	done := make(chan error, 1)
	go func() {
		done <- cycle.Run(ctx, func(ctx context.Context) error { return nil })
	}()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
