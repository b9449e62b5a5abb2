// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package content

import (
	"bytes"
	"context"
	"io"
	"sync"

	"soyuz.io/soyuz/pkg/checksum"
)

// TestStore is an in-memory Store for tests.
type TestStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

var _ Store = (*TestStore)(nil)

// NewTestStore creates an empty in-memory store.
func NewTestStore() *TestStore {
	return &TestStore{blobs: map[string][]byte{}}
}

// Open returns a reader over the blob identified by ref.
func (store *TestStore) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	data, ok := store.blobs[ref.SHA1]
	if !ok {
		return nil, ErrNotFound.New("%s", ref.SHA1)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Put stores the contents of r and returns its Ref.
func (store *TestStore) Put(ctx context.Context, r io.Reader) (Ref, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Ref{}, Error.Wrap(err)
	}
	sums := checksum.NewSet()
	_, _ = sums.Write(data)

	ref := Ref{SHA1: sums.SHA1(), SHA256: sums.SHA256(), Size: sums.Size()}

	store.mu.Lock()
	defer store.mu.Unlock()
	store.blobs[ref.SHA1] = data
	return ref, nil
}

// PutBytes stores data and returns its Ref.
func (store *TestStore) PutBytes(data []byte) Ref {
	ref, _ := store.Put(context.Background(), bytes.NewReader(data))
	return ref
}

// Corrupt replaces the stored bytes for ref without changing its digests,
// for exercising verification failures.
func (store *TestStore) Corrupt(ref Ref, data []byte) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.blobs[ref.SHA1] = data
}
