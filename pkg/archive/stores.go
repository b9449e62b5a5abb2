// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package archive

import (
	"context"
	"time"
)

// Publications persists publishing history rows.
type Publications interface {
	// Create inserts a publication together with its files and sets its ID.
	Create(ctx context.Context, pub *Publication) error

	// Get returns a single publication with its files.
	Get(ctx context.Context, id int64) (*Publication, error)

	// Pending returns all publications in status pending, oldest first.
	Pending(ctx context.Context) ([]*Publication, error)

	// Published returns all publications in status published, oldest first.
	Published(ctx context.Context) ([]*Publication, error)

	// LiveInSuite returns published publications for a suite, for index
	// generation.
	LiveInSuite(ctx context.Context, suite Suite) ([]*Publication, error)

	// MarkPublished transitions publications to status published.
	MarkPublished(ctx context.Context, ids []int64) error

	// MarkSuperseded transitions publications to status superseded and
	// records when they become eligible for reaping.
	MarkSuperseded(ctx context.Context, ids []int64, superseded, scheduled time.Time) error

	// ReapCandidates returns superseded, obsolete or deleted publications
	// whose scheduled deletion date has passed and which have not been
	// removed yet. A non-positive limit means no limit.
	ReapCandidates(ctx context.Context, now time.Time, limit int) ([]*Publication, error)

	// HasLiveReference reports whether any pending or published
	// publication still references the given pool entry. Pool entries are
	// per component; the same content in another component is a separate
	// entry.
	HasLiveReference(ctx context.Context, component Component, name, version, filename string) (bool, error)

	// MarkRemoved records that a publication's files have been reaped.
	MarkRemoved(ctx context.Context, ids []int64, removed time.Time) error
}

// ArchiveFileFilter narrows ArchiveFiles.GetByArchive. LiveAt and
// ExistedAt are mutually exclusive.
type ArchiveFileFilter struct {
	Container  string
	Path       string
	PathPrefix string
	LiveAt     *time.Time
	ExistedAt  *time.Time
}

// ArchiveFiles persists bookkeeping for non-package files in the archive
// tree.
type ArchiveFiles interface {
	// Create inserts a new archive file row and sets its ID.
	Create(ctx context.Context, file *ArchiveFile) error

	// ScheduleDeletion supersedes the given files and schedules their
	// physical removal.
	ScheduleDeletion(ctx context.Context, ids []int64, superseded, scheduled time.Time) error

	// ContainersToReap groups files whose scheduled deletion date has
	// passed and which have not been removed, by container. An optional
	// path prefix narrows the result.
	ContainersToReap(ctx context.Context, now time.Time, pathPrefix string) (map[string][]*ArchiveFile, error)

	// MarkDeleted records that files have been physically removed.
	MarkDeleted(ctx context.Context, ids []int64, removed time.Time) error

	// GetByArchive returns files matching the filter, ordered by path then
	// creation date.
	GetByArchive(ctx context.Context, filter ArchiveFileFilter) ([]*ArchiveFile, error)
}

// Uploads persists the accepted-upload queue.
type Uploads interface {
	// Create inserts an upload queue entry and sets its ID.
	Create(ctx context.Context, upload *Upload) error

	// Accepted returns entries waiting to be processed, oldest first.
	Accepted(ctx context.Context) ([]*Upload, error)

	// MarkDone records an entry as processed.
	MarkDone(ctx context.Context, id int64, processed time.Time) error

	// MarkFailed records an entry as failed with a reason; the entry is
	// left for operator attention and is not retried.
	MarkFailed(ctx context.Context, id int64, processed time.Time, reason string) error
}
