// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package archive

import (
	"time"

	"soyuz.io/soyuz/pkg/content"
)

// ArchiveFile is a non-package file living directly in the archive tree,
// such as a Release file or a Packages index. One logical path may have
// several rows over time; exactly one is live at any instant.
type ArchiveFile struct {
	ID        int64
	Container string // owning subsystem tag, e.g. "release:jammy"
	Path      string // relative to the archive root
	Content   content.Ref

	DateCreated           time.Time
	DateSuperseded        *time.Time
	ScheduledDeletionDate *time.Time
	DateRemoved           *time.Time
}

// LiveAt reports whether the file was live at t: created at or before t
// and not yet superseded by then.
func (file *ArchiveFile) LiveAt(t time.Time) bool {
	if file.DateCreated.After(t) {
		return false
	}
	return file.DateSuperseded == nil || file.DateSuperseded.After(t)
}

// ExistedAt reports whether the file was still on disk at t.
func (file *ArchiveFile) ExistedAt(t time.Time) bool {
	if file.DateCreated.After(t) {
		return false
	}
	return file.DateRemoved == nil || file.DateRemoved.After(t)
}
