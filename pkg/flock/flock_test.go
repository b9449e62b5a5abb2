// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package flock_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"soyuz.io/soyuz/internal/testcontext"
	"soyuz.io/soyuz/pkg/flock"
)

func TestTryLock(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("publisher.lock")

	first, err := flock.Open(path)
	require.NoError(t, err)
	defer ctx.Check(first.Close)

	require.NoError(t, first.TryLock())

	second, err := flock.Open(path)
	require.NoError(t, err)
	defer ctx.Check(second.Close)

	err = second.TryLock()
	require.Error(t, err)
	require.True(t, flock.ErrLocked.Has(err))

	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}
