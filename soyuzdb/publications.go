// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package soyuzdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"soyuz.io/soyuz/pkg/archive"
	"soyuz.io/soyuz/pkg/content"
)

type publicationsDB struct {
	*DB
}

var _ archive.Publications = (*publicationsDB)(nil)

const publicationColumns = `id, kind, name, version, component, series, pocket,
	status, format, date_created, date_superseded, scheduled_deletion_date, date_removed`

// Create inserts a publication together with its files and sets its ID.
func (db *publicationsDB) Create(ctx context.Context, pub *archive.Publication) (err error) {
	defer mon.Task()(&ctx)(&err)

	if pub.Status == "" {
		pub.Status = archive.StatusPending
	}
	if pub.Format == "" {
		pub.Format = archive.FormatPool
	}
	if pub.DateCreated.IsZero() {
		pub.DateCreated = time.Now().UTC()
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO publications
				(kind, name, version, component, series, pocket, status, format, date_created)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pub.Kind, pub.Name, pub.Version, pub.Component,
			pub.Suite.Series, pub.Suite.Pocket, pub.Status, pub.Format,
			pub.DateCreated)
		if err != nil {
			return ErrDatabase.Wrap(err)
		}
		pub.ID, err = result.LastInsertId()
		if err != nil {
			return ErrDatabase.Wrap(err)
		}

		for _, file := range pub.Files {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO published_files
					(publication_id, name, version, filename, component,
					 architecture, kind, sha1, sha256, size, section, maintainer)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				pub.ID, file.Name, file.Version, file.Filename, file.Component,
				file.Architecture, file.Kind,
				file.Content.SHA1, file.Content.SHA256, file.Content.Size,
				file.Section, file.Maintainer)
			if err != nil {
				return ErrDatabase.Wrap(err)
			}
		}
		return nil
	})
}

// Get returns a single publication with its files.
func (db *publicationsDB) Get(ctx context.Context, id int64) (_ *archive.Publication, err error) {
	defer mon.Task()(&ctx)(&err)

	pubs, err := db.query(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(pubs) == 0 {
		return nil, ErrDatabase.New("publication %d not found", id)
	}
	return pubs[0], nil
}

// Pending returns all publications in status pending, oldest first.
func (db *publicationsDB) Pending(ctx context.Context) (_ []*archive.Publication, err error) {
	defer mon.Task()(&ctx)(&err)
	return db.query(ctx, `WHERE status = ? ORDER BY id`, archive.StatusPending)
}

// Published returns all publications in status published, oldest first.
func (db *publicationsDB) Published(ctx context.Context) (_ []*archive.Publication, err error) {
	defer mon.Task()(&ctx)(&err)
	return db.query(ctx, `WHERE status = ? ORDER BY id`, archive.StatusPublished)
}

// LiveInSuite returns published publications for a suite.
func (db *publicationsDB) LiveInSuite(ctx context.Context, suite archive.Suite) (_ []*archive.Publication, err error) {
	defer mon.Task()(&ctx)(&err)
	return db.query(ctx, `WHERE status = ? AND series = ? AND pocket = ? ORDER BY id`,
		archive.StatusPublished, suite.Series, suite.Pocket)
}

// MarkPublished transitions publications to status published.
func (db *publicationsDB) MarkPublished(ctx context.Context, ids []int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	if len(ids) == 0 {
		return nil
	}
	_, err = db.db.ExecContext(ctx,
		`UPDATE publications SET status = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		append([]interface{}{archive.StatusPublished}, int64Args(ids)...)...)
	return ErrDatabase.Wrap(err)
}

// MarkSuperseded transitions publications to status superseded and records
// when they become eligible for reaping.
func (db *publicationsDB) MarkSuperseded(ctx context.Context, ids []int64, superseded, scheduled time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)
	if len(ids) == 0 {
		return nil
	}
	_, err = db.db.ExecContext(ctx,
		`UPDATE publications
		SET status = ?, date_superseded = ?, scheduled_deletion_date = ?
		WHERE id IN (`+placeholders(len(ids))+`)`,
		append([]interface{}{archive.StatusSuperseded, superseded.UTC(), scheduled.UTC()}, int64Args(ids)...)...)
	return ErrDatabase.Wrap(err)
}

// ReapCandidates returns dead publications whose scheduled deletion date
// has passed and which have not been removed yet.
func (db *publicationsDB) ReapCandidates(ctx context.Context, now time.Time, limit int) (_ []*archive.Publication, err error) {
	defer mon.Task()(&ctx)(&err)

	clause := `WHERE status IN (?, ?, ?)
		AND date_removed IS NULL
		AND scheduled_deletion_date IS NOT NULL
		AND scheduled_deletion_date <= ?
		ORDER BY id`
	args := []interface{}{
		archive.StatusSuperseded, archive.StatusObsolete, archive.StatusDeleted,
		now.UTC(),
	}
	if limit > 0 {
		clause += ` LIMIT ?`
		args = append(args, limit)
	}
	return db.query(ctx, clause, args...)
}

// HasLiveReference reports whether any pending or published publication
// still references the given pool entry.
func (db *publicationsDB) HasLiveReference(ctx context.Context, component archive.Component, name, version, filename string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	var count int64
	err = db.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM published_files f
		JOIN publications p ON p.id = f.publication_id
		WHERE f.component = ? AND f.name = ? AND f.version = ? AND f.filename = ?
			AND p.status IN (?, ?)`,
		component, name, version, filename,
		archive.StatusPending, archive.StatusPublished).Scan(&count)
	if err != nil {
		return false, ErrDatabase.Wrap(err)
	}
	return count > 0, nil
}

// MarkRemoved records that a publication's files have been reaped.
func (db *publicationsDB) MarkRemoved(ctx context.Context, ids []int64, removed time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)
	if len(ids) == 0 {
		return nil
	}
	_, err = db.db.ExecContext(ctx,
		`UPDATE publications SET date_removed = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		append([]interface{}{removed.UTC()}, int64Args(ids)...)...)
	return ErrDatabase.Wrap(err)
}

// query loads publications matching the clause, with their files.
func (db *publicationsDB) query(ctx context.Context, clause string, args ...interface{}) (_ []*archive.Publication, err error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+publicationColumns+` FROM publications `+clause, args...)
	if err != nil {
		return nil, ErrDatabase.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var pubs []*archive.Publication
	for rows.Next() {
		pub, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrDatabase.Wrap(err)
	}

	for _, pub := range pubs {
		pub.Files, err = db.files(ctx, pub.ID)
		if err != nil {
			return nil, err
		}
	}
	return pubs, nil
}

func scanPublication(rows *sql.Rows) (*archive.Publication, error) {
	var pub archive.Publication
	var superseded, scheduled, removed sql.NullTime
	err := rows.Scan(
		&pub.ID, &pub.Kind, &pub.Name, &pub.Version, &pub.Component,
		&pub.Suite.Series, &pub.Suite.Pocket, &pub.Status, &pub.Format,
		&pub.DateCreated, &superseded, &scheduled, &removed)
	if err != nil {
		return nil, ErrDatabase.Wrap(err)
	}
	pub.DateSuperseded = nullTime(superseded)
	pub.ScheduledDeletionDate = nullTime(scheduled)
	pub.DateRemoved = nullTime(removed)
	return &pub, nil
}

func (db *publicationsDB) files(ctx context.Context, publicationID int64) (_ []archive.PublishedFile, err error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT name, version, filename, component, architecture, kind,
			sha1, sha256, size, section, maintainer
		FROM published_files
		WHERE publication_id = ?
		ORDER BY id`, publicationID)
	if err != nil {
		return nil, ErrDatabase.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var files []archive.PublishedFile
	for rows.Next() {
		var file archive.PublishedFile
		var ref content.Ref
		err := rows.Scan(
			&file.Name, &file.Version, &file.Filename, &file.Component,
			&file.Architecture, &file.Kind,
			&ref.SHA1, &ref.SHA256, &ref.Size,
			&file.Section, &file.Maintainer)
		if err != nil {
			return nil, ErrDatabase.Wrap(err)
		}
		file.Content = ref
		files = append(files, file)
	}
	return files, ErrDatabase.Wrap(rows.Err())
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
