// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package checksum computes the digest set used throughout the archive:
// MD5, SHA-1 and SHA-256 over a single pass of the data.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"

	"github.com/zeebo/errs"
)

// Error is the default checksum errs class.
var Error = errs.Class("checksum")

// Set accumulates all archive digests of a byte stream.
type Set struct {
	md5    hash.Hash
	sha1   hash.Hash
	sha256 hash.Hash
	size   int64
}

// NewSet creates an empty digest set.
func NewSet() *Set {
	return &Set{
		md5:    md5.New(),
		sha1:   sha1.New(),
		sha256: sha256.New(),
	}
}

// Write feeds data into every digest.
func (set *Set) Write(p []byte) (int, error) {
	set.md5.Write(p)
	set.sha1.Write(p)
	set.sha256.Write(p)
	set.size += int64(len(p))
	return len(p), nil
}

// Size returns the number of bytes written so far.
func (set *Set) Size() int64 { return set.size }

// MD5 returns the hex encoded MD5 digest.
func (set *Set) MD5() string { return hex.EncodeToString(set.md5.Sum(nil)) }

// SHA1 returns the hex encoded SHA-1 digest.
func (set *Set) SHA1() string { return hex.EncodeToString(set.sha1.Sum(nil)) }

// SHA256 returns the hex encoded SHA-256 digest.
func (set *Set) SHA256() string { return hex.EncodeToString(set.sha256.Sum(nil)) }

// Sum consumes r and returns its digest set.
func Sum(r io.Reader) (*Set, error) {
	set := NewSet()
	if _, err := io.Copy(set, r); err != nil {
		return nil, Error.Wrap(err)
	}
	return set, nil
}

// SumFile returns the digest set of the file at path.
func SumFile(path string) (*Set, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = fh.Close() }()
	return Sum(fh)
}
