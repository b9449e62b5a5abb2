// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package content_test

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"soyuz.io/soyuz/internal/testcontext"
	"soyuz.io/soyuz/internal/testrand"
	"soyuz.io/soyuz/pkg/content"
)

func TestFileStorePutOpen(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := content.NewFileStore(ctx.Dir("store"))
	require.NoError(t, err)

	data := testrand.BytesN(64 * 1024)
	ref, err := store.Put(ctx, bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), ref.Size)
	require.Len(t, ref.SHA1, 40)
	require.Len(t, ref.SHA256, 64)

	rc, err := store.Open(ctx, ref)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, data, got)
}

func TestFileStorePutIdempotent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := content.NewFileStore(ctx.Dir("store"))
	require.NoError(t, err)

	data := []byte("same bytes twice")
	first, err := store.Put(ctx, bytes.NewReader(data))
	require.NoError(t, err)
	second, err := store.Put(ctx, bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestFileStoreNotFound(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := content.NewFileStore(ctx.Dir("store"))
	require.NoError(t, err)

	_, err = store.Open(ctx, content.Ref{SHA1: "da39a3ee5e6b4b0d3255bfef95601890afd80709"})
	require.Error(t, err)
	require.True(t, content.ErrNotFound.Has(err))

	// The temp directory never leaks blobs.
	entries, err := os.ReadDir(ctx.Dir("store", "tmp"))
	require.NoError(t, err)
	require.Empty(t, entries)
}