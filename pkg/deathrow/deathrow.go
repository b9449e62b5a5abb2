// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package deathrow physically removes pool files whose publications have
// passed their stay of execution. The reaper is tolerant: a file that is
// already gone, still shared, or otherwise unremovable never blocks the
// publication from being recorded as removed.
package deathrow

import (
	"context"
	"hash/fnv"
	"path/filepath"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"soyuz.io/soyuz/pkg/archive"
	"soyuz.io/soyuz/pkg/flock"
	"soyuz.io/soyuz/pkg/pool"
)

var (
	// Error is the default deathrow errs class.
	Error = errs.Class("deathrow")

	mon = monkit.Package()
)

// reapBatchSize bounds how many publications transition per database
// commit.
const reapBatchSize = 100

// Summary counts one reaper pass.
type Summary struct {
	Reaped int   // publications marked removed
	Freed  int64 // pool bytes deleted
}

// DeathRow removes expired publications from the pool.
type DeathRow struct {
	log      *zap.Logger
	pool     *pool.Pool
	pubs     archive.Publications
	workers  int
	lockPath string
}

// New creates a DeathRow reaping with the given worker count. The lock
// is the same one the publisher holds, so a reap and a publish of one
// archive never overlap; it defaults to the publisher lock next to the
// pool root.
func New(log *zap.Logger, pool *pool.Pool, pubs archive.Publications, workers int, lockPath string) *DeathRow {
	if workers < 1 {
		workers = 1
	}
	if lockPath == "" {
		lockPath = filepath.Join(filepath.Dir(pool.Root()), ".publisher.lock")
	}
	return &DeathRow{
		log:      log,
		pool:     pool,
		pubs:     pubs,
		workers:  workers,
		lockPath: lockPath,
	}
}

// Reap processes every publication whose scheduled deletion date has
// passed. Each candidate is marked removed whether or not its pool files
// could be deleted; a pool entry still referenced by a live publication
// in the same component is left alone, and shared content survives until
// the last component holding it lets go.
func (row *DeathRow) Reap(ctx context.Context, now time.Time) (summary Summary, err error) {
	defer mon.Task()(&ctx)(&err)

	lock, err := flock.Open(row.lockPath)
	if err != nil {
		return Summary{}, err
	}
	defer func() { err = errs.Combine(err, lock.Close()) }()
	if err := lock.TryLock(); err != nil {
		return Summary{}, err
	}
	defer func() { err = errs.Combine(err, lock.Unlock()) }()

	for {
		candidates, err := row.pubs.ReapCandidates(ctx, now, reapBatchSize)
		if err != nil {
			return summary, err
		}
		if len(candidates) == 0 {
			return summary, nil
		}

		// Publications sharing a source directory go to the same worker,
		// so pool mutations for one source never race.
		shards := make([][]*archive.Publication, row.workers)
		for _, pub := range candidates {
			i := shardFor(pub.Name, row.workers)
			shards[i] = append(shards[i], pub)
		}

		var mu sync.Mutex
		var group errgroup.Group
		for _, shard := range shards {
			shard := shard
			group.Go(func() error {
				for _, pub := range shard {
					freed := row.reapPublication(ctx, pub)
					mu.Lock()
					summary.Freed += freed
					mu.Unlock()
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return summary, Error.Wrap(err)
		}

		ids := make([]int64, 0, len(candidates))
		for _, pub := range candidates {
			ids = append(ids, pub.ID)
		}
		if err := row.pubs.MarkRemoved(ctx, ids, now); err != nil {
			return summary, err
		}
		summary.Reaped += len(candidates)

		if len(candidates) < reapBatchSize {
			return summary, nil
		}
	}
}

// reapPublication deletes one publication's pool files where possible and
// returns the bytes freed. Errors are logged, never returned; removal
// bookkeeping happens regardless.
func (row *DeathRow) reapPublication(ctx context.Context, pub *archive.Publication) (freed int64) {
	if pub.Format == archive.FormatCI {
		// CI-format bytes live in an alternative backend; only the
		// bookkeeping transitions here.
		return 0
	}

	for _, file := range pub.Files {
		live, err := row.pubs.HasLiveReference(ctx, file.Component, file.Name, file.Version, file.Filename)
		if err != nil {
			row.log.Error("live reference check failed",
				zap.String("filename", file.Filename),
				zap.Error(err))
			continue
		}
		if live {
			row.log.Debug("still referenced, leaving in pool",
				zap.String("source", file.Name),
				zap.String("filename", file.Filename))
			continue
		}

		size, err := row.pool.Remove(ctx, file.Component, file.Name, file.Version, file.Filename)
		switch {
		case err == nil:
			freed += size
		case pool.ErrNotInPool.Has(err), pool.ErrMissingSymlink.Has(err):
			row.log.Warn("pool entry already gone",
				zap.String("source", file.Name),
				zap.String("filename", file.Filename),
				zap.String("component", string(file.Component)),
				zap.Error(err))
		default:
			row.log.Error("pool removal failed",
				zap.String("source", file.Name),
				zap.String("filename", file.Filename),
				zap.Error(err))
		}
	}
	return freed
}

func shardFor(source string, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(source))
	return int(h.Sum32() % uint32(workers))
}
