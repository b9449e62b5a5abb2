// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package soyuzdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"soyuz.io/soyuz/internal/testcontext"
	"soyuz.io/soyuz/pkg/archive"
	"soyuz.io/soyuz/pkg/content"
	"soyuz.io/soyuz/soyuzdb"
)

func openTestDB(t *testing.T, ctx *testcontext.Context) *soyuzdb.DB {
	db, err := soyuzdb.Open(zaptest.NewLogger(t), ctx.File("soyuz.db"))
	require.NoError(t, err)
	require.NoError(t, db.MigrateToLatest(context.Background()))
	return db
}

func samplePublication(suite archive.Suite, component archive.Component, name, version string) *archive.Publication {
	return &archive.Publication{
		Kind:      archive.KindBinary,
		Name:      name,
		Version:   version,
		Component: component,
		Suite:     suite,
		Files: []archive.PublishedFile{{
			Name:      name,
			Version:   version,
			Filename:  name + "_" + version + ".deb",
			Component: component,
			Kind:      archive.KindBinary,
			Content:   content.Ref{SHA1: "da39a3ee5e6b4b0d3255bfef95601890afd80709", SHA256: "e3b0", Size: 3},
		}},
	}
}

func TestMigrateTwice(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	// applying migrations again is a no-op
	require.NoError(t, db.MigrateToLatest(context.Background()))
}

func TestPublicationLifecycle(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	pubs := db.Publications()
	suite := archive.Suite{Series: "jammy", Pocket: archive.PocketRelease}

	pub := samplePublication(suite, "main", "foo", "1.0")
	require.NoError(t, pubs.Create(context.Background(), pub))
	require.NotZero(t, pub.ID)
	require.Equal(t, archive.StatusPending, pub.Status)

	pending, err := pubs.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "foo", pending[0].Name)
	require.Len(t, pending[0].Files, 1)
	require.Equal(t, "foo_1.0.deb", pending[0].Files[0].Filename)
	require.Equal(t, int64(3), pending[0].Files[0].Content.Size)

	require.NoError(t, pubs.MarkPublished(context.Background(), []int64{pub.ID}))

	pending, err = pubs.Pending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)

	published, err := pubs.Published(context.Background())
	require.NoError(t, err)
	require.Len(t, published, 1)

	live, err := pubs.LiveInSuite(context.Background(), suite)
	require.NoError(t, err)
	require.Len(t, live, 1)

	other, err := pubs.LiveInSuite(context.Background(), archive.Suite{Series: "noble", Pocket: archive.PocketRelease})
	require.NoError(t, err)
	require.Empty(t, other)

	// supersede and verify reap eligibility honors the schedule
	now := time.Now().UTC()
	require.NoError(t, pubs.MarkSuperseded(context.Background(),
		[]int64{pub.ID}, now, now.Add(24*time.Hour)))

	candidates, err := pubs.ReapCandidates(context.Background(), now, 0)
	require.NoError(t, err)
	require.Empty(t, candidates)

	candidates, err = pubs.ReapCandidates(context.Background(), now.Add(25*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, archive.StatusSuperseded, candidates[0].Status)

	require.NoError(t, pubs.MarkRemoved(context.Background(), []int64{pub.ID}, now.Add(25*time.Hour)))

	candidates, err = pubs.ReapCandidates(context.Background(), now.Add(26*time.Hour), 0)
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestHasLiveReference(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	pubs := db.Publications()
	suite := archive.Suite{Series: "jammy", Pocket: archive.PocketRelease}

	main := samplePublication(suite, "main", "foo", "1.0")
	universe := samplePublication(suite, "universe", "foo", "1.0")
	require.NoError(t, pubs.Create(context.Background(), main))
	require.NoError(t, pubs.Create(context.Background(), universe))
	require.NoError(t, pubs.MarkPublished(context.Background(), []int64{main.ID, universe.ID}))

	live, err := pubs.HasLiveReference(context.Background(), "main", "foo", "1.0", "foo_1.0.deb")
	require.NoError(t, err)
	require.True(t, live)

	now := time.Now().UTC()
	require.NoError(t, pubs.MarkSuperseded(context.Background(), []int64{main.ID}, now, now))

	// References are per component: main's entry is free to go while
	// universe's copy stays live.
	live, err = pubs.HasLiveReference(context.Background(), "main", "foo", "1.0", "foo_1.0.deb")
	require.NoError(t, err)
	require.False(t, live)

	live, err = pubs.HasLiveReference(context.Background(), "universe", "foo", "1.0", "foo_1.0.deb")
	require.NoError(t, err)
	require.True(t, live)

	require.NoError(t, pubs.MarkSuperseded(context.Background(), []int64{universe.ID}, now, now))

	live, err = pubs.HasLiveReference(context.Background(), "universe", "foo", "1.0", "foo_1.0.deb")
	require.NoError(t, err)
	require.False(t, live)
}

func TestArchiveFiles(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	files := db.ArchiveFiles()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first := &archive.ArchiveFile{
		Container:   "release:jammy",
		Path:        "dists/jammy/Release",
		Content:     content.Ref{SHA1: "aa", SHA256: "bb", Size: 10},
		DateCreated: base,
	}
	require.NoError(t, files.Create(context.Background(), first))
	require.NotZero(t, first.ID)

	// a newer snapshot supersedes the old row
	second := &archive.ArchiveFile{
		Container:   "release:jammy",
		Path:        "dists/jammy/Release",
		Content:     content.Ref{SHA1: "cc", SHA256: "dd", Size: 12},
		DateCreated: base.Add(time.Hour),
	}
	require.NoError(t, files.Create(context.Background(), second))
	require.NoError(t, files.ScheduleDeletion(context.Background(),
		[]int64{first.ID}, base.Add(time.Hour), base.Add(25*time.Hour)))

	// live_at before the handover sees the old row, after it the new one
	at := base.Add(30 * time.Minute)
	live, err := files.GetByArchive(context.Background(), archive.ArchiveFileFilter{
		Container: "release:jammy", LiveAt: &at,
	})
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, first.ID, live[0].ID)

	after := base.Add(2 * time.Hour)
	live, err = files.GetByArchive(context.Background(), archive.ArchiveFileFilter{
		Container: "release:jammy", LiveAt: &after,
	})
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, second.ID, live[0].ID)

	// existed_at still sees the superseded row until it is removed
	existed, err := files.GetByArchive(context.Background(), archive.ArchiveFileFilter{
		Container: "release:jammy", ExistedAt: &after,
	})
	require.NoError(t, err)
	require.Len(t, existed, 2)

	// both filters at once is an error
	_, err = files.GetByArchive(context.Background(), archive.ArchiveFileFilter{
		LiveAt: &at, ExistedAt: &after,
	})
	require.Error(t, err)

	// reap grouping honors the schedule
	toReap, err := files.ContainersToReap(context.Background(), base.Add(2*time.Hour), "")
	require.NoError(t, err)
	require.Empty(t, toReap)

	toReap, err = files.ContainersToReap(context.Background(), base.Add(26*time.Hour), "")
	require.NoError(t, err)
	require.Len(t, toReap["release:jammy"], 1)
	require.Equal(t, first.ID, toReap["release:jammy"][0].ID)

	require.NoError(t, files.MarkDeleted(context.Background(),
		[]int64{first.ID}, base.Add(26*time.Hour)))

	toReap, err = files.ContainersToReap(context.Background(), base.Add(27*time.Hour), "")
	require.NoError(t, err)
	require.Empty(t, toReap)
}

func TestUploads(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	uploads := db.Uploads()
	suite := archive.Suite{Series: "jammy", Pocket: archive.PocketRelease}

	upload := &archive.Upload{
		Kind:      archive.KindBinary,
		Name:      "foo",
		Version:   "1.0",
		Component: "main",
		Suite:     suite,
		Files: []archive.PublishedFile{{
			Name: "foo", Version: "1.0", Filename: "foo_1.0.deb",
			Component: "main", Kind: archive.KindBinary,
			Content: content.Ref{SHA1: "aa", SHA256: "bb", Size: 3},
		}},
	}
	require.NoError(t, uploads.Create(context.Background(), upload))

	accepted, err := uploads.Accepted(context.Background())
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	require.Len(t, accepted[0].Files, 1)

	require.NoError(t, uploads.MarkDone(context.Background(), upload.ID, time.Now()))

	accepted, err = uploads.Accepted(context.Background())
	require.NoError(t, err)
	require.Empty(t, accepted)
}
