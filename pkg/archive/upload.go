// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package archive

import "time"

// UploadStatus is the state of an upload queue entry.
type UploadStatus string

// Upload queue statuses.
const (
	UploadAccepted UploadStatus = "accepted"
	UploadDone     UploadStatus = "done"
	UploadFailed   UploadStatus = "failed"
)

// Upload is an accepted upload waiting to become pending publications.
type Upload struct {
	ID        int64
	Kind      Kind
	Name      string
	Version   string
	Component Component
	Suite     Suite
	Format    Format
	Files     []PublishedFile
	Status    UploadStatus

	DateCreated   time.Time
	DateProcessed *time.Time
	Reason        string // failure reason, when Status is UploadFailed
}
