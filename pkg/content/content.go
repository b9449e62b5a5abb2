// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package content abstracts the backing store that holds the actual bytes
// of uploaded package files. Publisher and pool code never re-derive the
// digests kept in a Ref, except to verify them against bytes actually
// written to disk.
package content

import (
	"context"
	"io"

	"github.com/zeebo/errs"
)

// Error is the default content errs class.
var Error = errs.Class("content")

// ErrNotFound is returned when a blob is not present in the store.
var ErrNotFound = errs.Class("content not found")

// Ref identifies a stored blob together with its precomputed digests.
type Ref struct {
	SHA1   string
	SHA256 string
	Size   int64
}

// Source provides streaming access to stored blobs.
type Source interface {
	// Open returns a reader over the blob identified by ref.
	Open(ctx context.Context, ref Ref) (io.ReadCloser, error)
}

// Store is a Source that also accepts new blobs.
type Store interface {
	Source

	// Put stores the contents of r and returns its Ref.
	Put(ctx context.Context, r io.Reader) (Ref, error)
}
