// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package pool

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"soyuz.io/soyuz/pkg/archive"
)

// entry is the on-disk state of one (source, filename) pair across all
// components: which component holds the regular file and which hold
// symlinks. Rebuilt from disk on every operation so that a previous
// partial run cannot poison later decisions.
type entry struct {
	pool     *Pool
	source   string
	filename string

	fileComponent archive.Component
	symlinks      []archive.Component
}

// scan inspects every component path for the file.
func (pool *Pool) scan(source, filename string) (*entry, error) {
	entry := &entry{pool: pool, source: source, filename: filename}
	for _, component := range pool.order {
		info, err := os.Lstat(pool.PathFor(component, source, filename))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, Error.Wrap(err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			entry.symlinks = append(entry.symlinks, component)
		} else {
			entry.fileComponent = component
		}
	}
	return entry, nil
}

func (entry *entry) hasSymlink(component archive.Component) bool {
	for _, c := range entry.symlinks {
		if c == component {
			return true
		}
	}
	return false
}

// link creates a symlink for component pointing at the canonical file.
// Symlinks are relative so the archive tree can be relocated wholesale.
func (pool *Pool) link(component archive.Component, entry *entry) error {
	linkPath := pool.PathFor(component, entry.source, entry.filename)
	if err := os.MkdirAll(filepath.Dir(linkPath), 0755); err != nil {
		return Error.Wrap(err)
	}
	canonical := pool.PathFor(entry.fileComponent, entry.source, entry.filename)
	rel, err := filepath.Rel(filepath.Dir(linkPath), canonical)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := os.Symlink(rel, linkPath); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// relink replaces whatever is at component's path with a symlink to the
// canonical file held by entry.fileComponent.
func (pool *Pool) relink(component archive.Component, entry *entry) error {
	linkPath := pool.PathFor(component, entry.source, entry.filename)
	if err := os.Remove(linkPath); err != nil && !os.IsNotExist(err) {
		return Error.Wrap(err)
	}
	canonical := pool.PathFor(entry.fileComponent, entry.source, entry.filename)
	rel, err := filepath.Rel(filepath.Dir(linkPath), canonical)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := os.Symlink(rel, linkPath); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// shuffle makes target the canonical component: the regular file moves to
// target's path and every other referencing component, including the old
// canonical one, becomes a symlink to it.
func (pool *Pool) shuffle(entry *entry, target archive.Component) error {
	if target == entry.fileComponent {
		return nil
	}
	if !entry.hasSymlink(target) {
		return ErrMissingSymlink.New("%s/%s in %s", entry.source, entry.filename, target)
	}

	oldCanonical := entry.fileComponent
	targetPath := pool.PathFor(target, entry.source, entry.filename)
	oldPath := pool.PathFor(oldCanonical, entry.source, entry.filename)

	if err := os.Remove(targetPath); err != nil {
		return Error.Wrap(err)
	}
	if err := os.Rename(oldPath, targetPath); err != nil {
		return Error.Wrap(err)
	}

	remaining := make([]archive.Component, 0, len(entry.symlinks))
	for _, c := range entry.symlinks {
		if c != target {
			remaining = append(remaining, c)
		}
	}
	entry.fileComponent = target
	entry.symlinks = append(remaining, oldCanonical)

	// Repoint everything, the old canonical included, at the new home.
	for _, c := range entry.symlinks {
		if err := pool.relink(c, entry); err != nil {
			return err
		}
	}

	pool.log.Debug("shuffled symlinks",
		zap.String("source", entry.source),
		zap.String("filename", entry.filename),
		zap.String("canonical", string(target)))
	return nil
}
