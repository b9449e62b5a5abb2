// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package soyuzdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"soyuz.io/soyuz/pkg/archive"
)

type archiveFilesDB struct {
	*DB
}

var _ archive.ArchiveFiles = (*archiveFilesDB)(nil)

const archiveFileColumns = `id, container, path, sha1, sha256, size,
	date_created, date_superseded, scheduled_deletion_date, date_removed`

// Create inserts a new archive file row and sets its ID.
func (db *archiveFilesDB) Create(ctx context.Context, file *archive.ArchiveFile) (err error) {
	defer mon.Task()(&ctx)(&err)

	if file.DateCreated.IsZero() {
		file.DateCreated = time.Now().UTC()
	}
	result, err := db.db.ExecContext(ctx, `
		INSERT INTO archive_files (container, path, sha1, sha256, size, date_created)
		VALUES (?, ?, ?, ?, ?, ?)`,
		file.Container, file.Path,
		file.Content.SHA1, file.Content.SHA256, file.Content.Size,
		file.DateCreated)
	if err != nil {
		return ErrDatabase.Wrap(err)
	}
	file.ID, err = result.LastInsertId()
	return ErrDatabase.Wrap(err)
}

// ScheduleDeletion supersedes the given files and schedules their
// physical removal.
func (db *archiveFilesDB) ScheduleDeletion(ctx context.Context, ids []int64, superseded, scheduled time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)
	if len(ids) == 0 {
		return nil
	}
	_, err = db.db.ExecContext(ctx,
		`UPDATE archive_files
		SET date_superseded = ?, scheduled_deletion_date = ?
		WHERE id IN (`+placeholders(len(ids))+`)`,
		append([]interface{}{superseded.UTC(), scheduled.UTC()}, int64Args(ids)...)...)
	return ErrDatabase.Wrap(err)
}

// ContainersToReap groups files eligible for physical removal by
// container.
func (db *archiveFilesDB) ContainersToReap(ctx context.Context, now time.Time, pathPrefix string) (_ map[string][]*archive.ArchiveFile, err error) {
	defer mon.Task()(&ctx)(&err)

	clause := `WHERE date_removed IS NULL
		AND scheduled_deletion_date IS NOT NULL
		AND scheduled_deletion_date <= ?`
	args := []interface{}{now.UTC()}
	if pathPrefix != "" {
		clause += ` AND path LIKE ?`
		args = append(args, pathPrefix+"%")
	}
	clause += ` ORDER BY container, path, id`

	files, err := db.query(ctx, clause, args...)
	if err != nil {
		return nil, err
	}

	grouped := map[string][]*archive.ArchiveFile{}
	for _, file := range files {
		grouped[file.Container] = append(grouped[file.Container], file)
	}
	return grouped, nil
}

// MarkDeleted records that files have been physically removed.
func (db *archiveFilesDB) MarkDeleted(ctx context.Context, ids []int64, removed time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)
	if len(ids) == 0 {
		return nil
	}
	_, err = db.db.ExecContext(ctx,
		`UPDATE archive_files SET date_removed = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		append([]interface{}{removed.UTC()}, int64Args(ids)...)...)
	return ErrDatabase.Wrap(err)
}

// GetByArchive returns files matching the filter. LiveAt and ExistedAt
// are mutually exclusive; supplying both is an invalid-arguments error,
// not silently ignored.
func (db *archiveFilesDB) GetByArchive(ctx context.Context, filter archive.ArchiveFileFilter) (_ []*archive.ArchiveFile, err error) {
	defer mon.Task()(&ctx)(&err)

	if filter.LiveAt != nil && filter.ExistedAt != nil {
		return nil, ErrDatabase.New("live_at and existed_at cannot be combined")
	}

	clause := `WHERE 1=1`
	var args []interface{}
	if filter.Container != "" {
		clause += ` AND container = ?`
		args = append(args, filter.Container)
	}
	if filter.Path != "" {
		clause += ` AND path = ?`
		args = append(args, filter.Path)
	}
	if filter.PathPrefix != "" {
		clause += ` AND path LIKE ?`
		args = append(args, filter.PathPrefix+"%")
	}
	if filter.LiveAt != nil {
		t := filter.LiveAt.UTC()
		clause += ` AND date_created <= ? AND (date_superseded IS NULL OR date_superseded > ?)`
		args = append(args, t, t)
	}
	if filter.ExistedAt != nil {
		t := filter.ExistedAt.UTC()
		clause += ` AND date_created <= ? AND (date_removed IS NULL OR date_removed > ?)`
		args = append(args, t, t)
	}
	clause += ` ORDER BY path, date_created, id`

	return db.query(ctx, clause, args...)
}

func (db *archiveFilesDB) query(ctx context.Context, clause string, args ...interface{}) (_ []*archive.ArchiveFile, err error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+archiveFileColumns+` FROM archive_files `+clause, args...)
	if err != nil {
		return nil, ErrDatabase.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var files []*archive.ArchiveFile
	for rows.Next() {
		var file archive.ArchiveFile
		var superseded, scheduled, removed sql.NullTime
		err := rows.Scan(
			&file.ID, &file.Container, &file.Path,
			&file.Content.SHA1, &file.Content.SHA256, &file.Content.Size,
			&file.DateCreated, &superseded, &scheduled, &removed)
		if err != nil {
			return nil, ErrDatabase.Wrap(err)
		}
		file.DateSuperseded = nullTime(superseded)
		file.ScheduledDeletionDate = nullTime(scheduled)
		file.DateRemoved = nullTime(removed)
		files = append(files, &file)
	}
	return files, ErrDatabase.Wrap(rows.Err())
}
