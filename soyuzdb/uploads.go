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

type uploadsDB struct {
	*DB
}

var _ archive.Uploads = (*uploadsDB)(nil)

// Create inserts an upload queue entry and sets its ID.
func (db *uploadsDB) Create(ctx context.Context, upload *archive.Upload) (err error) {
	defer mon.Task()(&ctx)(&err)

	if upload.Status == "" {
		upload.Status = archive.UploadAccepted
	}
	if upload.Format == "" {
		upload.Format = archive.FormatPool
	}
	if upload.DateCreated.IsZero() {
		upload.DateCreated = time.Now().UTC()
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO uploads
				(kind, name, version, component, series, pocket, format, status, date_created)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			upload.Kind, upload.Name, upload.Version, upload.Component,
			upload.Suite.Series, upload.Suite.Pocket, upload.Format,
			upload.Status, upload.DateCreated)
		if err != nil {
			return ErrDatabase.Wrap(err)
		}
		upload.ID, err = result.LastInsertId()
		if err != nil {
			return ErrDatabase.Wrap(err)
		}

		for _, file := range upload.Files {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO upload_files
					(upload_id, name, version, filename, component,
					 architecture, kind, sha1, sha256, size, section, maintainer)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				upload.ID, file.Name, file.Version, file.Filename, file.Component,
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

// Accepted returns entries waiting to be processed, oldest first.
func (db *uploadsDB) Accepted(ctx context.Context) (_ []*archive.Upload, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.QueryContext(ctx, `
		SELECT id, kind, name, version, component, series, pocket, format,
			status, reason, date_created, date_processed
		FROM uploads
		WHERE status = ?
		ORDER BY id`, archive.UploadAccepted)
	if err != nil {
		return nil, ErrDatabase.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var uploads []*archive.Upload
	for rows.Next() {
		var upload archive.Upload
		var processed sql.NullTime
		err := rows.Scan(
			&upload.ID, &upload.Kind, &upload.Name, &upload.Version,
			&upload.Component, &upload.Suite.Series, &upload.Suite.Pocket,
			&upload.Format, &upload.Status, &upload.Reason,
			&upload.DateCreated, &processed)
		if err != nil {
			return nil, ErrDatabase.Wrap(err)
		}
		upload.DateProcessed = nullTime(processed)
		uploads = append(uploads, &upload)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrDatabase.Wrap(err)
	}

	for _, upload := range uploads {
		upload.Files, err = db.files(ctx, upload.ID)
		if err != nil {
			return nil, err
		}
	}
	return uploads, nil
}

// MarkDone records an entry as processed.
func (db *uploadsDB) MarkDone(ctx context.Context, id int64, processed time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)
	_, err = db.db.ExecContext(ctx,
		`UPDATE uploads SET status = ?, date_processed = ? WHERE id = ?`,
		archive.UploadDone, processed.UTC(), id)
	return ErrDatabase.Wrap(err)
}

// MarkFailed records an entry as failed with a reason.
func (db *uploadsDB) MarkFailed(ctx context.Context, id int64, processed time.Time, reason string) (err error) {
	defer mon.Task()(&ctx)(&err)
	_, err = db.db.ExecContext(ctx,
		`UPDATE uploads SET status = ?, date_processed = ?, reason = ? WHERE id = ?`,
		archive.UploadFailed, processed.UTC(), reason, id)
	return ErrDatabase.Wrap(err)
}

func (db *uploadsDB) files(ctx context.Context, uploadID int64) (_ []archive.PublishedFile, err error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT name, version, filename, component, architecture, kind,
			sha1, sha256, size, section, maintainer
		FROM upload_files
		WHERE upload_id = ?
		ORDER BY id`, uploadID)
	if err != nil {
		return nil, ErrDatabase.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var files []archive.PublishedFile
	for rows.Next() {
		var file archive.PublishedFile
		err := rows.Scan(
			&file.Name, &file.Version, &file.Filename, &file.Component,
			&file.Architecture, &file.Kind,
			&file.Content.SHA1, &file.Content.SHA256, &file.Content.Size,
			&file.Section, &file.Maintainer)
		if err != nil {
			return nil, ErrDatabase.Wrap(err)
		}
		files = append(files, file)
	}
	return files, ErrDatabase.Wrap(rows.Err())
}
