// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package archive

import (
	"time"

	"soyuz.io/soyuz/pkg/content"
)

// Status is the lifecycle state of a publication record.
type Status string

// Publication statuses.
const (
	StatusPending    Status = "pending"
	StatusPublished  Status = "published"
	StatusSuperseded Status = "superseded"
	StatusDeleted    Status = "deleted"
	StatusObsolete   Status = "obsolete"
)

// Kind tags a publication or file as source or binary.
type Kind string

// Publication kinds.
const (
	KindSource Kind = "source"
	KindBinary Kind = "binary"
)

// Format describes how a publication's files are stored. Pool-format
// publications live in the traditional pool tree; CI-format ones are kept
// by an alternative backend and are never touched by the reaper.
type Format string

// Publication formats.
const (
	FormatPool Format = "pool"
	FormatCI   Format = "ci"
)

// PublishedFile is one physical artifact belonging to a publication.
// Immutable once created: content never changes for a given
// filename+version.
type PublishedFile struct {
	Name         string // source package name, used for pool layout
	Version      string
	Filename     string
	Component    Component
	Architecture string // binaries only
	Kind         Kind
	Content      content.Ref

	// optional index metadata
	Section    string
	Maintainer string
}

// Publication is one row of source or binary publishing history.
type Publication struct {
	ID        int64
	Kind      Kind
	Name      string
	Version   string
	Component Component
	Suite     Suite
	Status    Status
	Format    Format
	Files     []PublishedFile

	DateCreated           time.Time
	DateSuperseded        *time.Time
	ScheduledDeletionDate *time.Time
	DateRemoved           *time.Time
}

// Live reports whether the publication still holds references to its pool
// files.
func (pub *Publication) Live() bool {
	return pub.Status == StatusPending || pub.Status == StatusPublished
}
