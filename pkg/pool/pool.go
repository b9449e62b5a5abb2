// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package pool implements the deduplicated on-disk pool tree. A package
// file lives at pool/<component>/<prefix>/<source>/<filename>; when the
// identical file is published in several components, exactly one
// component holds the regular file and every other component holds a
// symlink to it. The canonical component is the most preferred one in the
// archive's component order.
package pool

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"soyuz.io/soyuz/pkg/archive"
	"soyuz.io/soyuz/pkg/checksum"
	"soyuz.io/soyuz/pkg/content"
)

var (
	// Error is the default pool errs class.
	Error = errs.Class("pool")

	// ErrNotInPool means no entry exists for the file at all. Expected
	// during reap of partially removed state.
	ErrNotInPool = errs.Class("not in pool")

	// ErrMissingSymlink means an entry exists but the requested component
	// holds neither the file nor a symlink. Expected during reap after a
	// partially completed earlier run.
	ErrMissingSymlink = errs.Class("missing symlink in pool")

	// ErrChecksum means the bytes written to the pool do not match the
	// digests recorded for the blob. Fatal for the file's addition.
	ErrChecksum = errs.Class("pool checksum mismatch")

	mon = monkit.Package()
)

// copyChunkSize bounds memory use while streaming from the content store.
const copyChunkSize = 256 * 1024

// Result describes what Add had to do.
type Result int

// Add results.
const (
	NoneRequired Result = iota
	FileAdded
	SymlinkAdded
)

// String returns a human readable result name.
func (result Result) String() string {
	switch result {
	case NoneRequired:
		return "none-required"
	case FileAdded:
		return "file-added"
	case SymlinkAdded:
		return "symlink-added"
	default:
		return "unknown"
	}
}

// Pool is a single archive's pool tree.
type Pool struct {
	log      *zap.Logger
	root     string
	temp     string
	order    archive.Order
	contents content.Source
}

// New creates a pool rooted at root. The component order decides which
// copy of a shared file is canonical.
func New(log *zap.Logger, root string, order archive.Order, contents content.Source) (*Pool, error) {
	pool := &Pool{
		log:      log,
		root:     root,
		temp:     filepath.Join(root, ".tmp"),
		order:    order,
		contents: contents,
	}
	if err := os.MkdirAll(pool.temp, 0755); err != nil {
		return nil, Error.Wrap(err)
	}
	return pool, nil
}

// Root returns the pool root directory.
func (pool *Pool) Root() string { return pool.root }

// Prefix returns the pool fan-out directory for a source name: "lib" plus
// the following letter for library packages, the first letter otherwise.
func Prefix(source string) string {
	if strings.HasPrefix(source, "lib") && len(source) > 3 {
		return source[:4]
	}
	return source[:1]
}

// PathFor returns the physical path of a file. Pure path construction;
// stable for identical inputs.
func (pool *Pool) PathFor(component archive.Component, source, filename string) string {
	return filepath.Join(pool.root, string(component), Prefix(source), source, filename)
}

// Add materializes file in the given component and reports the action
// taken. Adding the same file twice is a no-op reported as NoneRequired,
// but only when the bytes on disk still match the blob's digests; a
// drifted entry surfaces as ErrChecksum.
func (pool *Pool) Add(ctx context.Context, component archive.Component, file archive.PublishedFile) (_ Result, err error) {
	defer mon.Task()(&ctx)(&err)

	entry, err := pool.scan(file.Name, file.Filename)
	if err != nil {
		return NoneRequired, err
	}

	if entry.fileComponent == "" {
		if err := pool.install(ctx, component, file); err != nil {
			return NoneRequired, err
		}
		pool.log.Debug("file added",
			zap.String("source", file.Name),
			zap.String("version", file.Version),
			zap.String("filename", file.Filename),
			zap.String("component", string(component)))
		return FileAdded, nil
	}

	// An entry only counts as present when the canonical bytes still
	// match the blob. The pool can drift behind the database when files
	// are manipulated out of band.
	if err := pool.verify(entry, file); err != nil {
		return NoneRequired, err
	}

	if component == entry.fileComponent || entry.hasSymlink(component) {
		// Already in place, regular file or symlink.
		return NoneRequired, nil
	}

	if err := pool.link(component, entry); err != nil {
		return NoneRequired, err
	}
	entry.symlinks = append(entry.symlinks, component)

	if pool.order.Prefers(component, entry.fileComponent) {
		// The new component outranks the canonical one: move the regular
		// file over and turn every other location into a symlink.
		if err := pool.shuffle(entry, component); err != nil {
			return NoneRequired, err
		}
	}

	pool.log.Debug("symlink added",
		zap.String("source", file.Name),
		zap.String("version", file.Version),
		zap.String("filename", file.Filename),
		zap.String("component", string(component)))
	return SymlinkAdded, nil
}

// Remove deletes the entry for the given component and returns the bytes
// freed. The returned size is uniformly the content's byte count, for
// symlinks and regular files alike. Removing the canonical file while
// symlinks still point to it promotes the best remaining symlink to
// canonical first; the content is only destroyed with its last reference.
// A symlink stranded by a vanished canonical file is deleted and reported
// as zero bytes freed.
func (pool *Pool) Remove(ctx context.Context, component archive.Component, source, version, filename string) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	entry, err := pool.scan(source, filename)
	if err != nil {
		return 0, err
	}

	if entry.fileComponent == "" {
		if entry.hasSymlink(component) {
			// The canonical copy is already gone. Drop the stranded
			// symlink so repeated removals converge instead of erroring
			// forever.
			if err := os.Remove(pool.PathFor(component, source, filename)); err != nil {
				return 0, Error.Wrap(err)
			}
			pool.log.Warn("removed dangling symlink",
				zap.String("source", source),
				zap.String("version", version),
				zap.String("filename", filename),
				zap.String("component", string(component)))
			return 0, nil
		}
		return 0, ErrNotInPool.New("%s/%s (%s)", source, filename, version)
	}

	canonical := pool.PathFor(entry.fileComponent, source, filename)
	info, err := os.Stat(canonical)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	size := info.Size()

	if entry.hasSymlink(component) {
		if err := os.Remove(pool.PathFor(component, source, filename)); err != nil {
			return 0, Error.Wrap(err)
		}
		pool.log.Debug("removed symlink",
			zap.String("source", source),
			zap.String("version", version),
			zap.String("filename", filename),
			zap.String("component", string(component)))
		return size, nil
	}

	if component != entry.fileComponent {
		return 0, ErrMissingSymlink.New("%s/%s in %s", source, filename, component)
	}

	if len(entry.symlinks) > 0 {
		// Still referenced elsewhere: hand the regular file to the most
		// preferred remaining component, then drop what is now a symlink.
		promote := pool.order.Best(entry.symlinks)
		if err := pool.shuffle(entry, promote); err != nil {
			return 0, err
		}
		if err := os.Remove(pool.PathFor(component, source, filename)); err != nil {
			return 0, Error.Wrap(err)
		}
		pool.log.Debug("removed reference, promoted canonical",
			zap.String("source", source),
			zap.String("filename", filename),
			zap.String("component", string(component)),
			zap.String("promoted", string(promote)))
		return size, nil
	}

	if err := os.Remove(canonical); err != nil {
		return 0, Error.Wrap(err)
	}
	pool.log.Debug("removed file",
		zap.String("source", source),
		zap.String("version", version),
		zap.String("filename", filename),
		zap.String("component", string(component)))
	return size, nil
}

// verify checks that the canonical pool file still holds the blob's
// bytes.
func (pool *Pool) verify(entry *entry, file archive.PublishedFile) error {
	canonical := pool.PathFor(entry.fileComponent, file.Name, file.Filename)
	sums, err := checksum.SumFile(canonical)
	if err != nil {
		return Error.Wrap(err)
	}
	if sums.SHA1() != file.Content.SHA1 {
		return ErrChecksum.New("%s: expected %s got %s",
			file.Filename, file.Content.SHA1, sums.SHA1())
	}
	return nil
}

// install streams the blob from the content store into the pool,
// verifying the written bytes against the blob's recorded SHA-1 before
// the file becomes visible at its final path.
func (pool *Pool) install(ctx context.Context, component archive.Component, file archive.PublishedFile) (err error) {
	target := pool.PathFor(component, file.Name, file.Filename)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Error.Wrap(err)
	}

	src, err := pool.contents.Open(ctx, file.Content)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, src.Close()) }()

	tmp, err := os.CreateTemp(pool.temp, filepath.Base(file.Filename)+"-")
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	sums := checksum.NewSet()
	buf := make([]byte, copyChunkSize)
	if _, err := io.CopyBuffer(io.MultiWriter(tmp, sums), src, buf); err != nil {
		return Error.Wrap(err)
	}

	if sums.SHA1() != file.Content.SHA1 {
		return ErrChecksum.New("%s: expected %s got %s",
			file.Filename, file.Content.SHA1, sums.SHA1())
	}

	// The pool file must be durable before the database learns about it.
	if err := tmp.Sync(); err != nil {
		return Error.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return Error.Wrap(err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return Error.Wrap(err)
	}
	return nil
}
