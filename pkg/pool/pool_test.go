// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package pool_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"soyuz.io/soyuz/internal/testcontext"
	"soyuz.io/soyuz/pkg/archive"
	"soyuz.io/soyuz/pkg/content"
	"soyuz.io/soyuz/pkg/pool"
)

var order = archive.Order{"main", "restricted", "universe", "multiverse"}

func newTestPool(t *testing.T, ctx *testcontext.Context) (*pool.Pool, *content.TestStore) {
	store := content.NewTestStore()
	p, err := pool.New(zaptest.NewLogger(t), ctx.Dir("pool"), order, store)
	require.NoError(t, err)
	return p, store
}

func testFile(store *content.TestStore, name, version, filename string, data []byte) archive.PublishedFile {
	return archive.PublishedFile{
		Name:     name,
		Version:  version,
		Filename: filename,
		Kind:     archive.KindBinary,
		Content:  store.PutBytes(data),
	}
}

func requireRegular(t *testing.T, path string) {
	t.Helper()
	info, err := os.Lstat(path)
	require.NoError(t, err)
	require.True(t, info.Mode().IsRegular(), "expected regular file at %s", path)
}

func requireSymlinkTo(t *testing.T, path, target string) {
	t.Helper()
	info, err := os.Lstat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&os.ModeSymlink, "expected symlink at %s", path)
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	expected, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	require.Equal(t, expected, resolved)
}

func TestPrefix(t *testing.T) {
	require.Equal(t, "f", pool.Prefix("foo"))
	require.Equal(t, "libf", pool.Prefix("libfoo"))
	require.Equal(t, "libz", pool.Prefix("libzstd"))
	require.Equal(t, "l", pool.Prefix("lib"))
}

func TestPathFor(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, _ := newTestPool(t, ctx)
	path := p.PathFor("main", "foo", "foo_1.0.deb")
	require.Equal(t, filepath.Join(p.Root(), "main", "f", "foo", "foo_1.0.deb"), path)
	// stable across calls
	require.Equal(t, path, p.PathFor("main", "foo", "foo_1.0.deb"))
}

func TestAddIdempotent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, store := newTestPool(t, ctx)
	file := testFile(store, "foo", "1.0", "foo_1.0.deb", []byte("foo"))

	result, err := p.Add(context.Background(), "main", file)
	require.NoError(t, err)
	require.Equal(t, pool.FileAdded, result)

	result, err = p.Add(context.Background(), "main", file)
	require.NoError(t, err)
	require.Equal(t, pool.NoneRequired, result)

	data, err := os.ReadFile(p.PathFor("main", "foo", "foo_1.0.deb"))
	require.NoError(t, err)
	require.Equal(t, []byte("foo"), data)
}

func TestAddDedupAcrossComponents(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, store := newTestPool(t, ctx)
	file := testFile(store, "foo", "1.0", "foo_1.0.deb", []byte("foo"))

	result, err := p.Add(context.Background(), "main", file)
	require.NoError(t, err)
	require.Equal(t, pool.FileAdded, result)

	result, err = p.Add(context.Background(), "universe", file)
	require.NoError(t, err)
	require.Equal(t, pool.SymlinkAdded, result)

	mainPath := p.PathFor("main", "foo", "foo_1.0.deb")
	universePath := p.PathFor("universe", "foo", "foo_1.0.deb")
	requireRegular(t, mainPath)
	requireSymlinkTo(t, universePath, mainPath)

	// removing the canonical copy while the symlink exists must not
	// destroy the content
	size, err := p.Remove(context.Background(), "main", "foo", "1.0", "foo_1.0.deb")
	require.NoError(t, err)
	require.Equal(t, int64(3), size)

	requireRegular(t, universePath)
	data, err := os.ReadFile(universePath)
	require.NoError(t, err)
	require.Equal(t, []byte("foo"), data)
}

func TestSymlinkShuffle(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, store := newTestPool(t, ctx)
	file := testFile(store, "foo", "1.0", "foo_1.0.deb", []byte("foo"))

	// less preferred component first
	result, err := p.Add(context.Background(), "universe", file)
	require.NoError(t, err)
	require.Equal(t, pool.FileAdded, result)

	// then the more preferred one: reported as SymlinkAdded, but the
	// regular file moves to main and universe becomes the symlink
	result, err = p.Add(context.Background(), "main", file)
	require.NoError(t, err)
	require.Equal(t, pool.SymlinkAdded, result)

	mainPath := p.PathFor("main", "foo", "foo_1.0.deb")
	universePath := p.PathFor("universe", "foo", "foo_1.0.deb")
	requireRegular(t, mainPath)
	requireSymlinkTo(t, universePath, mainPath)
}

func TestShuffleRepointsAllSymlinks(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, store := newTestPool(t, ctx)
	file := testFile(store, "foo", "1.0", "foo_1.0.deb", []byte("foo"))

	for _, component := range []archive.Component{"multiverse", "universe", "restricted"} {
		_, err := p.Add(context.Background(), component, file)
		require.NoError(t, err)
	}

	restrictedPath := p.PathFor("restricted", "foo", "foo_1.0.deb")
	requireRegular(t, restrictedPath)
	requireSymlinkTo(t, p.PathFor("universe", "foo", "foo_1.0.deb"), restrictedPath)
	requireSymlinkTo(t, p.PathFor("multiverse", "foo", "foo_1.0.deb"), restrictedPath)

	_, err := p.Add(context.Background(), "main", file)
	require.NoError(t, err)

	mainPath := p.PathFor("main", "foo", "foo_1.0.deb")
	requireRegular(t, mainPath)
	for _, component := range []archive.Component{"restricted", "universe", "multiverse"} {
		requireSymlinkTo(t, p.PathFor(component, "foo", "foo_1.0.deb"), mainPath)
	}
}

func TestRemoveSizeAccounting(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, store := newTestPool(t, ctx)
	payload := []byte("once upon a time\nthere was a file\n")
	file := testFile(store, "foo", "1.0", "foo_1.0.deb", payload)

	_, err := p.Add(context.Background(), "main", file)
	require.NoError(t, err)
	_, err = p.Add(context.Background(), "universe", file)
	require.NoError(t, err)

	// symlink removal reports the content's size, not the link's
	size, err := p.Remove(context.Background(), "universe", "foo", "1.0", "foo_1.0.deb")
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), size)

	// last reference reports the same size and frees the bytes
	size, err = p.Remove(context.Background(), "main", "foo", "1.0", "foo_1.0.deb")
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), size)

	_, err = os.Lstat(p.PathFor("main", "foo", "foo_1.0.deb"))
	require.True(t, os.IsNotExist(err))
}

func TestRemoveErrors(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, store := newTestPool(t, ctx)

	// nothing in the pool at all
	_, err := p.Remove(context.Background(), "main", "foo", "1.0", "foo_1.0.deb")
	require.Error(t, err)
	require.True(t, pool.ErrNotInPool.Has(err))

	// file exists, but the requested component holds neither file nor
	// symlink
	file := testFile(store, "foo", "1.0", "foo_1.0.deb", []byte("foo"))
	_, err = p.Add(context.Background(), "main", file)
	require.NoError(t, err)

	_, err = p.Remove(context.Background(), "universe", "foo", "1.0", "foo_1.0.deb")
	require.Error(t, err)
	require.True(t, pool.ErrMissingSymlink.Has(err))

	// the canonical copy is untouched by either failure
	requireRegular(t, p.PathFor("main", "foo", "foo_1.0.deb"))
}

func TestAddChecksumMismatch(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, store := newTestPool(t, ctx)
	file := testFile(store, "foo", "1.0", "foo_1.0.deb", []byte("foo"))

	// corrupt the stored bytes after the digests were recorded
	store.Corrupt(file.Content, []byte("bar"))

	_, err := p.Add(context.Background(), "main", file)
	require.Error(t, err)
	require.True(t, pool.ErrChecksum.Has(err))

	// nothing may appear at the target path
	_, err = os.Lstat(p.PathFor("main", "foo", "foo_1.0.deb"))
	require.True(t, os.IsNotExist(err))
}

func TestAddDetectsCorruptedEntry(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, store := newTestPool(t, ctx)
	file := testFile(store, "foo", "1.0", "foo_1.0.deb", []byte("good bytes"))

	result, err := p.Add(context.Background(), "main", file)
	require.NoError(t, err)
	require.Equal(t, pool.FileAdded, result)

	// somebody rewrote the pool file behind the database's back
	mainPath := p.PathFor("main", "foo", "foo_1.0.deb")
	require.NoError(t, os.WriteFile(mainPath, []byte("EVIL bytes"), 0644))

	// re-adding must not endorse the drifted entry as already in place
	_, err = p.Add(context.Background(), "main", file)
	require.Error(t, err)
	require.True(t, pool.ErrChecksum.Has(err))

	// nor may another component link to it
	_, err = p.Add(context.Background(), "universe", file)
	require.Error(t, err)
	require.True(t, pool.ErrChecksum.Has(err))
	_, err = os.Lstat(p.PathFor("universe", "foo", "foo_1.0.deb"))
	require.True(t, os.IsNotExist(err))
}

func TestRemoveDanglingSymlink(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, store := newTestPool(t, ctx)
	file := testFile(store, "foo", "1.0", "foo_1.0.deb", []byte("foo"))

	_, err := p.Add(context.Background(), "main", file)
	require.NoError(t, err)
	_, err = p.Add(context.Background(), "universe", file)
	require.NoError(t, err)

	// the canonical file vanishes out from under its symlink
	require.NoError(t, os.Remove(p.PathFor("main", "foo", "foo_1.0.deb")))

	size, err := p.Remove(context.Background(), "universe", "foo", "1.0", "foo_1.0.deb")
	require.NoError(t, err)
	require.Equal(t, int64(0), size)

	_, err = os.Lstat(p.PathFor("universe", "foo", "foo_1.0.deb"))
	require.True(t, os.IsNotExist(err))

	// a second removal finds nothing at all
	_, err = p.Remove(context.Background(), "universe", "foo", "1.0", "foo_1.0.deb")
	require.True(t, pool.ErrNotInPool.Has(err))
}

func TestRemovePromotesNextComponent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, store := newTestPool(t, ctx)
	file := testFile(store, "foo", "1.0", "foo_1.0.deb", []byte("foo"))

	for _, component := range []archive.Component{"main", "universe", "multiverse"} {
		_, err := p.Add(context.Background(), component, file)
		require.NoError(t, err)
	}

	_, err := p.Remove(context.Background(), "main", "foo", "1.0", "foo_1.0.deb")
	require.NoError(t, err)

	// universe outranks multiverse, so it inherits the regular file
	universePath := p.PathFor("universe", "foo", "foo_1.0.deb")
	requireRegular(t, universePath)
	requireSymlinkTo(t, p.PathFor("multiverse", "foo", "foo_1.0.deb"), universePath)
	_, err = os.Lstat(p.PathFor("main", "foo", "foo_1.0.deb"))
	require.True(t, os.IsNotExist(err))
}

func TestLibraryPrefixLayout(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	p, store := newTestPool(t, ctx)
	file := testFile(store, "libbar", "2.1", "libbar2_2.1.deb", []byte("library"))

	_, err := p.Add(context.Background(), "main", file)
	require.NoError(t, err)

	requireRegular(t, filepath.Join(p.Root(), "main", "libb", "libbar", "libbar2_2.1.deb"))
}
