// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package checksum_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"soyuz.io/soyuz/internal/testcontext"
	"soyuz.io/soyuz/pkg/checksum"
)

func TestSum(t *testing.T) {
	// known digests for the string "foo"
	set, err := checksum.Sum(bytes.NewReader([]byte("foo")))
	require.NoError(t, err)

	require.Equal(t, int64(3), set.Size())
	require.Equal(t, "acbd18db4cc2f85cedef654fccc4a4d8", set.MD5())
	require.Equal(t, "0beec7b5ea3f0fdbc95d0dd47f3c5bc275da8a33", set.SHA1())
	require.Equal(t, "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae", set.SHA256())
}

func TestSumEmpty(t *testing.T) {
	set, err := checksum.Sum(bytes.NewReader(nil))
	require.NoError(t, err)

	require.Equal(t, int64(0), set.Size())
	require.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", set.MD5())
	require.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", set.SHA1())
}

func TestSumFile(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("payload")
	require.NoError(t, os.WriteFile(path, []byte("foo"), 0644))

	set, err := checksum.SumFile(path)
	require.NoError(t, err)
	require.Equal(t, int64(3), set.Size())
	require.Equal(t, "0beec7b5ea3f0fdbc95d0dd47f3c5bc275da8a33", set.SHA1())

	_, err = checksum.SumFile(ctx.File("missing"))
	require.Error(t, err)
}
