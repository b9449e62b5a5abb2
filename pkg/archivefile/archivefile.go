// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package archivefile manages the lifecycle of non-package files in the
// archive tree: Release files and index snapshots. A path has many rows
// over time; the newest unsuperseded row is the live one, older rows wait
// out a stay of execution before their bytes are removed.
package archivefile

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"soyuz.io/soyuz/pkg/archive"
	"soyuz.io/soyuz/pkg/checksum"
	"soyuz.io/soyuz/pkg/content"
)

var (
	// Error is the default archivefile errs class.
	Error = errs.Class("archivefile")

	mon = monkit.Package()
)

// Manager tracks archive files for one archive root.
type Manager struct {
	log   *zap.Logger
	root  string
	files archive.ArchiveFiles
}

// NewManager creates a Manager over the archive rooted at root.
func NewManager(log *zap.Logger, root string, files archive.ArchiveFiles) *Manager {
	return &Manager{log: log, root: root, files: files}
}

// New records a new live archive file at path with known digests.
func (manager *Manager) New(ctx context.Context, container, path string, ref content.Ref) (_ *archive.ArchiveFile, err error) {
	defer mon.Task()(&ctx)(&err)

	file := &archive.ArchiveFile{
		Container:   container,
		Path:        path,
		Content:     ref,
		DateCreated: time.Now().UTC(),
	}
	if err := manager.files.Create(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// NewFromFile digests the file on disk at path (relative to the archive
// root) and records it as a new live archive file.
func (manager *Manager) NewFromFile(ctx context.Context, container, path string) (_ *archive.ArchiveFile, err error) {
	defer mon.Task()(&ctx)(&err)

	sums, err := checksum.SumFile(filepath.Join(manager.root, path))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return manager.New(ctx, container, path, content.Ref{
		SHA1:   sums.SHA1(),
		SHA256: sums.SHA256(),
		Size:   sums.Size(),
	})
}

// Supersede records a new live file at path and schedules deletion of the
// rows it replaces, all within the same container.
func (manager *Manager) Supersede(ctx context.Context, container, path string, stay time.Duration) (_ *archive.ArchiveFile, err error) {
	defer mon.Task()(&ctx)(&err)

	now := time.Now().UTC()
	previous, err := manager.files.GetByArchive(ctx, archive.ArchiveFileFilter{
		Container: container,
		Path:      path,
		LiveAt:    &now,
	})
	if err != nil {
		return nil, err
	}

	file, err := manager.NewFromFile(ctx, container, path)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, old := range previous {
		ids = append(ids, old.ID)
	}
	if err := manager.ScheduleDeletion(ctx, ids, stay); err != nil {
		return nil, err
	}
	return file, nil
}

// ScheduleDeletion supersedes files now and schedules their physical
// removal after the stay of execution.
func (manager *Manager) ScheduleDeletion(ctx context.Context, ids []int64, stay time.Duration) (err error) {
	defer mon.Task()(&ctx)(&err)

	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return manager.files.ScheduleDeletion(ctx, ids, now, now.Add(stay))
}

// ContainersToReap groups files whose stay of execution has expired by
// container.
func (manager *Manager) ContainersToReap(ctx context.Context, now time.Time, pathPrefix string) (map[string][]*archive.ArchiveFile, error) {
	return manager.files.ContainersToReap(ctx, now, pathPrefix)
}

// Reap physically removes every file whose stay of execution expired
// before now and marks the rows deleted. Only rows whose bytes are no
// longer referenced by any live row at the same path lose their bytes; a
// path that has a live row keeps its file on disk, the dead row is
// bookkeeping only.
func (manager *Manager) Reap(ctx context.Context, now time.Time) (reaped int, err error) {
	defer mon.Task()(&ctx)(&err)

	grouped, err := manager.files.ContainersToReap(ctx, now, "")
	if err != nil {
		return 0, err
	}

	for container, files := range grouped {
		var ids []int64
		for _, file := range files {
			live, err := manager.files.GetByArchive(ctx, archive.ArchiveFileFilter{
				Container: container,
				Path:      file.Path,
				LiveAt:    &now,
			})
			if err != nil {
				return reaped, err
			}
			if len(live) == 0 {
				err := os.Remove(filepath.Join(manager.root, file.Path))
				if err != nil && !os.IsNotExist(err) {
					manager.log.Warn("unable to remove archive file",
						zap.String("path", file.Path), zap.Error(err))
					continue
				}
			}
			ids = append(ids, file.ID)
		}
		if err := manager.files.MarkDeleted(ctx, ids, now); err != nil {
			return reaped, err
		}
		reaped += len(ids)
		manager.log.Info("reaped archive files",
			zap.String("container", container), zap.Int("count", len(ids)))
	}
	return reaped, nil
}

// GetByArchive exposes filtered queries over the bookkeeping rows.
func (manager *Manager) GetByArchive(ctx context.Context, filter archive.ArchiveFileFilter) ([]*archive.ArchiveFile, error) {
	return manager.files.GetByArchive(ctx, filter)
}
