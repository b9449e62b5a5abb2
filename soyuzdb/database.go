// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package soyuzdb implements the archive bookkeeping store on sqlite.
package soyuzdb

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"soyuz.io/soyuz/internal/migrate"
	"soyuz.io/soyuz/pkg/archive"
)

var (
	mon = monkit.Package()

	// ErrDatabase represents errors from the database.
	ErrDatabase = errs.Class("database")
)

// VersionTable is the table that stores the schema version.
const VersionTable = "versions"

// DB gives access to the archive bookkeeping tables.
type DB struct {
	log *zap.Logger
	db  *sql.DB

	location string

	publications *publicationsDB
	archiveFiles *archiveFilesDB
	uploads      *uploadsDB
}

// Open opens, creating if needed, the bookkeeping database at path.
func Open(log *zap.Logger, path string) (*DB, error) {
	handle, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=10000")
	if err != nil {
		return nil, ErrDatabase.Wrap(err)
	}
	// sqlite handles one writer at a time; the publisher is batch-shaped
	// anyway.
	handle.SetMaxOpenConns(1)

	db := &DB{
		log:      log,
		db:       handle,
		location: path,
	}
	db.publications = &publicationsDB{db}
	db.archiveFiles = &archiveFilesDB{db}
	db.uploads = &uploadsDB{db}
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return ErrDatabase.Wrap(db.db.Close())
}

// Publications returns the publishing history store.
func (db *DB) Publications() archive.Publications { return db.publications }

// ArchiveFiles returns the archive file bookkeeping store.
func (db *DB) ArchiveFiles() archive.ArchiveFiles { return db.archiveFiles }

// Uploads returns the accepted-upload queue store.
func (db *DB) Uploads() archive.Uploads { return db.uploads }

// MigrateToLatest applies any unapplied schema migrations.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return db.Migration().Run(db.log, db.db)
}

// Migration returns the schema migration steps.
func (db *DB) Migration() *migrate.Migration {
	return &migrate.Migration{
		Table: VersionTable,
		Steps: []*migrate.Step{
			{
				Description: "Initial setup",
				Version:     0,
				Action: migrate.SQL{
					`CREATE TABLE publications (
						id         INTEGER PRIMARY KEY AUTOINCREMENT,
						kind       TEXT NOT NULL,
						name       TEXT NOT NULL,
						version    TEXT NOT NULL,
						component  TEXT NOT NULL,
						series     TEXT NOT NULL,
						pocket     TEXT NOT NULL,
						status     TEXT NOT NULL,
						format     TEXT NOT NULL DEFAULT 'pool',

						date_created            TIMESTAMP NOT NULL,
						date_superseded         TIMESTAMP,
						scheduled_deletion_date TIMESTAMP,
						date_removed            TIMESTAMP
					)`,
					`CREATE INDEX idx_publications_status ON publications(status)`,
					`CREATE INDEX idx_publications_suite ON publications(series, pocket)`,
					`CREATE INDEX idx_publications_reap
						ON publications(scheduled_deletion_date)
						WHERE date_removed IS NULL`,

					`CREATE TABLE published_files (
						id             INTEGER PRIMARY KEY AUTOINCREMENT,
						publication_id INTEGER NOT NULL REFERENCES publications(id),
						name           TEXT NOT NULL,
						version        TEXT NOT NULL,
						filename       TEXT NOT NULL,
						component      TEXT NOT NULL,
						architecture   TEXT NOT NULL DEFAULT '',
						kind           TEXT NOT NULL,
						sha1           TEXT NOT NULL,
						sha256         TEXT NOT NULL,
						size           BIGINT NOT NULL,
						section        TEXT NOT NULL DEFAULT '',
						maintainer     TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX idx_published_files_publication
						ON published_files(publication_id)`,
					`CREATE INDEX idx_published_files_ref
						ON published_files(name, version, filename)`,

					`CREATE TABLE archive_files (
						id        INTEGER PRIMARY KEY AUTOINCREMENT,
						container TEXT NOT NULL,
						path      TEXT NOT NULL,
						sha1      TEXT NOT NULL,
						sha256    TEXT NOT NULL,
						size      BIGINT NOT NULL,

						date_created            TIMESTAMP NOT NULL,
						date_superseded         TIMESTAMP,
						scheduled_deletion_date TIMESTAMP,
						date_removed            TIMESTAMP
					)`,
					`CREATE INDEX idx_archive_files_container ON archive_files(container)`,
					`CREATE INDEX idx_archive_files_path ON archive_files(path)`,
					`CREATE INDEX idx_archive_files_reap
						ON archive_files(scheduled_deletion_date)
						WHERE date_removed IS NULL`,

					`CREATE TABLE uploads (
						id        INTEGER PRIMARY KEY AUTOINCREMENT,
						kind      TEXT NOT NULL,
						name      TEXT NOT NULL,
						version   TEXT NOT NULL,
						component TEXT NOT NULL,
						series    TEXT NOT NULL,
						pocket    TEXT NOT NULL,
						format    TEXT NOT NULL DEFAULT 'pool',
						status    TEXT NOT NULL,
						reason    TEXT NOT NULL DEFAULT '',

						date_created   TIMESTAMP NOT NULL,
						date_processed TIMESTAMP
					)`,
					`CREATE INDEX idx_uploads_status ON uploads(status)`,

					`CREATE TABLE upload_files (
						id           INTEGER PRIMARY KEY AUTOINCREMENT,
						upload_id    INTEGER NOT NULL REFERENCES uploads(id),
						name         TEXT NOT NULL,
						version      TEXT NOT NULL,
						filename     TEXT NOT NULL,
						component    TEXT NOT NULL,
						architecture TEXT NOT NULL DEFAULT '',
						kind         TEXT NOT NULL,
						sha1         TEXT NOT NULL,
						sha256       TEXT NOT NULL,
						size         BIGINT NOT NULL,
						section      TEXT NOT NULL DEFAULT '',
						maintainer   TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX idx_upload_files_upload ON upload_files(upload_id)`,
				},
			},
		},
	}
}

// withTx runs fn inside a transaction.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return ErrDatabase.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, tx.Rollback())
			return
		}
		err = ErrDatabase.Wrap(tx.Commit())
	}()
	return fn(tx)
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',', ' ')
		}
		out = append(out, '?')
	}
	return string(out)
}

// int64Args converts ids for use with a placeholders() fragment.
func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
