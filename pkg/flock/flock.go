// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package flock provides the named exclusive lock held for the duration
// of a publisher or reaper run. One lock guards one physical pool root;
// runs against different archives proceed in parallel.
package flock

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/zeebo/errs"
)

// Error is the default flock errs class.
var Error = errs.Class("flock")

// ErrLocked means the lock is held by another process.
var ErrLocked = errs.Class("already locked")

// Lock is an exclusive advisory lock backed by a lock file.
type Lock struct {
	fh *os.File
}

// Open creates the lock file if needed and returns an unacquired Lock.
func Open(path string) (*Lock, error) {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Lock{fh: fh}, nil
}

// TryLock attempts to acquire the lock without blocking.
func (lock *Lock) TryLock() error {
	err := syscall.Flock(int(lock.fh.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	switch err {
	case nil:
		return nil
	case syscall.EWOULDBLOCK:
		return ErrLocked.New("%s", lock.fh.Name())
	default:
		return Error.Wrap(err)
	}
}

// Lock acquires the lock, retrying until ctx is done.
func (lock *Lock) Lock(ctx context.Context, retryDelay time.Duration) error {
	for {
		err := lock.TryLock()
		if err == nil {
			return nil
		}
		if !ErrLocked.Has(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return Error.Wrap(ctx.Err())
		case <-time.After(retryDelay):
		}
	}
}

// Unlock releases the lock.
func (lock *Lock) Unlock() error {
	return Error.Wrap(syscall.Flock(int(lock.fh.Fd()), syscall.LOCK_UN))
}

// Close releases the lock file handle.
func (lock *Lock) Close() error {
	return Error.Wrap(lock.fh.Close())
}
