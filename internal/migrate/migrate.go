// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package migrate implements versioned schema migrations over database/sql.
package migrate

import (
	"database/sql"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is the default migrate errs class.
var Error = errs.Class("migrate")

// DB is the minimal implementation that is needed by migrations.
type DB interface {
	Begin() (*sql.Tx, error)
}

// Migration describes a migration steps.
type Migration struct {
	// Table is the table that tracks the applied versions.
	Table string
	Steps []*Step
}

// Step describes a single migration step.
type Step struct {
	Description string
	Version     int
	Action      Action
}

// Action is something that can run during a migration step.
type Action interface {
	Run(log *zap.Logger, db DB, tx *sql.Tx) error
}

// SQL statements that are executed in order during the step.
type SQL []string

// Run runs the SQL statements.
func (sql SQL) Run(log *zap.Logger, db DB, tx *sql.Tx) error {
	for _, query := range sql {
		_, err := tx.Exec(query)
		if err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// Func is an arbitrary migration step.
type Func func(log *zap.Logger, db DB, tx *sql.Tx) error

// Run runs the migration function.
func (fn Func) Run(log *zap.Logger, db DB, tx *sql.Tx) error {
	return fn(log, db, tx)
}

// Run applies the unapplied migration steps in order.
func (migration *Migration) Run(log *zap.Logger, db DB) error {
	if migration.Table == "" {
		return Error.New("migration table not set")
	}

	version, err := migration.currentVersion(db)
	if err != nil {
		return err
	}

	last := version
	for _, step := range migration.Steps {
		if step.Version <= version {
			continue
		}
		if step.Version <= last && last != version {
			return Error.New("steps have descending versions: %d after %d", step.Version, last)
		}

		stepLog := log.Named("migrate")
		stepLog.Info("applying", zap.Int("version", step.Version), zap.String("description", step.Description))

		tx, err := db.Begin()
		if err != nil {
			return Error.Wrap(err)
		}

		err = step.Action.Run(stepLog, db, tx)
		if err != nil {
			return Error.Wrap(errs.Combine(err, tx.Rollback()))
		}

		err = migration.addVersion(tx, step.Version)
		if err != nil {
			return Error.Wrap(errs.Combine(err, tx.Rollback()))
		}

		if err := tx.Commit(); err != nil {
			return Error.Wrap(err)
		}
		last = step.Version
	}

	return nil
}

// currentVersion finds the latest applied version, -1 when no version has
// been applied yet.
func (migration *Migration) currentVersion(db DB) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return -1, Error.Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`CREATE TABLE IF NOT EXISTS ` + migration.Table + ` (
		version INTEGER PRIMARY KEY,
		commited_at TEXT
	)`)
	if err != nil {
		return -1, Error.Wrap(err)
	}

	var version sql.NullInt64
	err = tx.QueryRow(`SELECT MAX(version) FROM ` + migration.Table).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return -1, Error.Wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return -1, Error.Wrap(err)
	}

	if !version.Valid {
		return -1, nil
	}
	return int(version.Int64), nil
}

// addVersion records a version as applied inside tx.
func (migration *Migration) addVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(
		`INSERT INTO `+migration.Table+` (version, commited_at) VALUES (?, datetime('now'))`,
		version,
	)
	return Error.Wrap(err)
}
