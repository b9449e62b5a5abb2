// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package content

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/errs"

	"soyuz.io/soyuz/pkg/checksum"
)

// FileStore keeps blobs on disk, addressed by their SHA-1, with a
// two-character fan-out directory to keep directories small.
type FileStore struct {
	root string
	temp string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a blob store rooted at path.
func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{
		root: path,
		temp: filepath.Join(path, "tmp"),
	}
	if err := os.MkdirAll(store.temp, 0755); err != nil {
		return nil, Error.Wrap(err)
	}
	return store, nil
}

func (store *FileStore) blobPath(sha1 string) string {
	return filepath.Join(store.root, sha1[:2], sha1)
}

// Open returns a reader over the blob identified by ref.
func (store *FileStore) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	fh, err := os.Open(store.blobPath(ref.SHA1))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound.New("%s", ref.SHA1)
		}
		return nil, Error.Wrap(err)
	}
	return fh, nil
}

// Put stores the contents of r and returns its Ref. The blob is written to
// a temporary file and moved into place only once fully durable.
func (store *FileStore) Put(ctx context.Context, r io.Reader) (_ Ref, err error) {
	fh, err := os.CreateTemp(store.temp, "blob-")
	if err != nil {
		return Ref{}, Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, os.Remove(fh.Name()))
		}
	}()

	sums := checksum.NewSet()
	if _, err := io.Copy(io.MultiWriter(fh, sums), r); err != nil {
		return Ref{}, Error.Wrap(errs.Combine(err, fh.Close()))
	}
	if err := fh.Sync(); err != nil {
		return Ref{}, Error.Wrap(errs.Combine(err, fh.Close()))
	}
	if err := fh.Close(); err != nil {
		return Ref{}, Error.Wrap(err)
	}

	ref := Ref{SHA1: sums.SHA1(), SHA256: sums.SHA256(), Size: sums.Size()}

	target := store.blobPath(ref.SHA1)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Ref{}, Error.Wrap(err)
	}
	if err := os.Rename(fh.Name(), target); err != nil {
		return Ref{}, Error.Wrap(err)
	}
	return ref, nil
}
