// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"soyuz.io/soyuz/internal/testcontext"
	"soyuz.io/soyuz/pkg/publish"
)

func TestResolveArchiveConfig(t *testing.T) {
	primary := filepath.Join("etc", "soyuz", "soyuz.yaml")

	path, err := resolveArchiveConfig(primary, "", "")
	require.NoError(t, err)
	require.Equal(t, primary, path)

	path, err = resolveArchiveConfig(primary, "team", "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("etc", "soyuz", "ppa", "team.yaml"), path)

	path, err = resolveArchiveConfig(primary, "", "security")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("etc", "soyuz", "copy", "security.yaml"), path)

	_, err = resolveArchiveConfig(primary, "team", "security")
	require.Error(t, err)
}

func TestResolveArchiveConfigUnknownArchive(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	// naming an archive that has no config must fail instead of silently
	// loading the primary one
	primary := ctx.File("etc", "soyuz.yaml")
	path, err := resolveArchiveConfig(primary, "nonexistent", "")
	require.NoError(t, err)
	require.NotEqual(t, primary, path)

	_, err = publish.LoadConfig(path)
	require.Error(t, err)
}
