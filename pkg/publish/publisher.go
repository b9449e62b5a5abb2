// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package publish drives the publication pipeline for one archive:
// pending files are materialized in the pool, older versions are
// dominated, indexes are regenerated for every dirty pocket and Release
// files are rewritten with fresh digests.
package publish

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"soyuz.io/soyuz/pkg/archive"
	"soyuz.io/soyuz/pkg/archivefile"
	"soyuz.io/soyuz/pkg/flock"
	"soyuz.io/soyuz/pkg/pool"
)

var (
	// Error is the default publish errs class.
	Error = errs.Class("publish")

	mon = monkit.Package()
)

// commitBatchSize is how many publications transition per database
// commit. Pool changes for a batch are durable before the commit, so a
// crash mid-run never leaves the database ahead of the disk.
const commitBatchSize = 100

// Signer signs a written Release file. Signing is external; a nil Signer
// leaves the file unsigned.
type Signer interface {
	Sign(ctx context.Context, releasePath string) error
}

// Summary counts the outcome of a publisher run.
type Summary struct {
	Published int
	Failed    int
	Dominated int
}

// Options select what a run publishes.
type Options struct {
	// Careful reprocesses already-published records as well.
	Careful bool

	// AllowedSuites, when non-empty, restricts the run to these suites;
	// publications elsewhere are not considered at all.
	AllowedSuites []archive.Suite
}

func (opts Options) allows(suite archive.Suite) bool {
	if len(opts.AllowedSuites) == 0 {
		return true
	}
	for _, allowed := range opts.AllowedSuites {
		if allowed == suite {
			return true
		}
	}
	return false
}

// Publisher publishes one archive.
type Publisher struct {
	log    *zap.Logger
	config *Config
	pool   *pool.Pool
	pubs   archive.Publications
	files  *archivefile.Manager
	signer Signer

	dirty   map[archive.Suite]struct{}
	indexes map[archive.Suite][]string
}

// New creates a Publisher. signer may be nil.
func New(log *zap.Logger, config *Config, pool *pool.Pool, pubs archive.Publications, files *archivefile.Manager, signer Signer) *Publisher {
	return &Publisher{
		log:     log,
		config:  config,
		pool:    pool,
		pubs:    pubs,
		files:   files,
		signer:  signer,
		dirty:   map[archive.Suite]struct{}{},
		indexes: map[archive.Suite][]string{},
	}
}

// DirtySuites returns the suites touched so far this run, sorted by
// name.
func (publisher *Publisher) DirtySuites() []archive.Suite {
	suites := make([]archive.Suite, 0, len(publisher.dirty))
	for suite := range publisher.dirty {
		suites = append(suites, suite)
	}
	sort.Slice(suites, func(i, j int) bool {
		return suites[i].Name() < suites[j].Name()
	})
	return suites
}

func (publisher *Publisher) markDirty(suite archive.Suite) {
	publisher.dirty[suite] = struct{}{}
}

// Run executes the full pipeline under the archive's exclusive lock:
// publish pending, dominate, generate indexes, write Release files.
func (publisher *Publisher) Run(ctx context.Context, opts Options) (_ Summary, err error) {
	defer mon.Task()(&ctx)(&err)

	lockPath := publisher.config.LockPath
	if lockPath == "" {
		lockPath = filepath.Join(publisher.config.ArchiveRoot, ".publisher.lock")
	}
	lock, err := flock.Open(lockPath)
	if err != nil {
		return Summary{}, err
	}
	defer func() { err = errs.Combine(err, lock.Close()) }()
	if err := lock.TryLock(); err != nil {
		return Summary{}, err
	}
	defer func() { err = errs.Combine(err, lock.Unlock()) }()

	summary, err := publisher.PublishPending(ctx, opts)
	if err != nil {
		return summary, err
	}
	summary.Dominated, err = publisher.Dominate(ctx, time.Now().UTC())
	if err != nil {
		return summary, err
	}
	if err := publisher.GenerateIndexes(ctx); err != nil {
		return summary, err
	}
	if err := publisher.WriteReleases(ctx, time.Now().UTC()); err != nil {
		return summary, err
	}

	publisher.log.Info("publisher run complete",
		zap.Int("published", summary.Published),
		zap.Int("failed", summary.Failed),
		zap.Int("dominated", summary.Dominated),
		zap.Int("dirty suites", len(publisher.dirty)))
	return summary, nil
}

// PublishPending is phase A: every pending publication, and in careful
// mode every published one as well, gets its files materialized in the
// pool. Suites that see work are marked dirty. A failure aborts only that
// publication's transition; the run continues and the failure is
// counted.
func (publisher *Publisher) PublishPending(ctx context.Context, opts Options) (summary Summary, err error) {
	defer mon.Task()(&ctx)(&err)

	pending, err := publisher.pubs.Pending(ctx)
	if err != nil {
		return summary, err
	}

	var republish []*archive.Publication
	if opts.Careful {
		republish, err = publisher.pubs.Published(ctx)
		if err != nil {
			return summary, err
		}
	}

	var toMark []int64
	flush := func() error {
		if len(toMark) == 0 {
			return nil
		}
		if err := publisher.pubs.MarkPublished(ctx, toMark); err != nil {
			return err
		}
		toMark = toMark[:0]
		return nil
	}

	for _, pub := range pending {
		if !opts.allows(pub.Suite) {
			continue
		}
		if err := publisher.publishFiles(ctx, pub); err != nil {
			publisher.log.Error("publication failed",
				zap.Int64("id", pub.ID),
				zap.String("name", pub.Name),
				zap.String("version", pub.Version),
				zap.Error(err))
			summary.Failed++
			continue
		}
		toMark = append(toMark, pub.ID)
		summary.Published++
		publisher.markDirty(pub.Suite)

		if len(toMark) >= commitBatchSize {
			if err := flush(); err != nil {
				return summary, err
			}
		}
	}
	if err := flush(); err != nil {
		return summary, err
	}

	// Careful mode re-adds files of already-published records and
	// dirties their pockets; their status does not change.
	for _, pub := range republish {
		if !opts.allows(pub.Suite) {
			continue
		}
		if err := publisher.publishFiles(ctx, pub); err != nil {
			publisher.log.Error("careful republish failed",
				zap.Int64("id", pub.ID),
				zap.String("name", pub.Name),
				zap.Error(err))
			summary.Failed++
			continue
		}
		summary.Published++
		publisher.markDirty(pub.Suite)
	}

	return summary, nil
}

// publishFiles materializes every file of one publication. CI-format
// publications keep their bytes in an alternative backend; they have no
// pool work.
func (publisher *Publisher) publishFiles(ctx context.Context, pub *archive.Publication) error {
	if pub.Format == archive.FormatCI {
		return nil
	}
	for _, file := range pub.Files {
		result, err := publisher.pool.Add(ctx, pub.Component, file)
		if err != nil {
			return err
		}
		if result != pool.NoneRequired {
			publisher.log.Debug("pool updated",
				zap.String("filename", file.Filename),
				zap.Stringer("result", result))
		}
	}
	return nil
}
