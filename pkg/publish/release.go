// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package publish

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"soyuz.io/soyuz/pkg/archive"
	"soyuz.io/soyuz/pkg/checksum"
)

// releaseDateFormat is the timestamp format Release files carry.
const releaseDateFormat = "Mon, 02 Jan 2006 15:04:05 UTC"

// WriteReleases is phase D: every dirty suite gets a fresh Release file
// digesting the indexes phase C wrote, optionally signed.
func (publisher *Publisher) WriteReleases(ctx context.Context, now time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	for _, suite := range publisher.DirtySuites() {
		if err := publisher.writeRelease(ctx, suite, now); err != nil {
			return err
		}
	}
	return nil
}

// releaseEntry is one digested index in a Release file.
type releaseEntry struct {
	path string // relative to the suite directory
	size int64
	md5  string
	sha1 string
	sha2 string
}

func (publisher *Publisher) writeRelease(ctx context.Context, suite archive.Suite, now time.Time) error {
	suitePrefix := "dists/" + suite.Name() + "/"

	var entries []releaseEntry
	for _, relpath := range publisher.indexes[suite] {
		sums, err := checksum.SumFile(filepath.Join(publisher.config.ArchiveRoot, filepath.FromSlash(relpath)))
		if err != nil {
			return Error.Wrap(err)
		}
		entries = append(entries, releaseEntry{
			path: strings.TrimPrefix(relpath, suitePrefix),
			size: sums.Size(),
			md5:  sums.MD5(),
			sha1: sums.SHA1(),
			sha2: sums.SHA256(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Origin: %s\n", publisher.config.Origin)
	fmt.Fprintf(&buf, "Label: %s\n", publisher.config.Label)
	fmt.Fprintf(&buf, "Suite: %s\n", suite.Name())
	fmt.Fprintf(&buf, "Codename: %s\n", suite.Series)
	if series, ok := publisher.config.series(suite.Series); ok {
		if series.Version != "" {
			fmt.Fprintf(&buf, "Version: %s\n", series.Version)
		}
		if series.Description != "" {
			fmt.Fprintf(&buf, "Description: %s\n", series.Description)
		}
	}
	fmt.Fprintf(&buf, "Date: %s\n", now.UTC().Format(releaseDateFormat))
	fmt.Fprintf(&buf, "Architectures: %s\n", strings.Join(publisher.config.Architectures, " "))
	fmt.Fprintf(&buf, "Components: %s\n", joinComponents(publisher.config.Components))

	fmt.Fprintf(&buf, "MD5Sum:\n")
	for _, entry := range entries {
		fmt.Fprintf(&buf, " %s %16d %s\n", entry.md5, entry.size, entry.path)
	}
	fmt.Fprintf(&buf, "SHA1:\n")
	for _, entry := range entries {
		fmt.Fprintf(&buf, " %s %16d %s\n", entry.sha1, entry.size, entry.path)
	}
	fmt.Fprintf(&buf, "SHA256:\n")
	for _, entry := range entries {
		fmt.Fprintf(&buf, " %s %16d %s\n", entry.sha2, entry.size, entry.path)
	}

	relpath := "dists/" + suite.Name() + "/Release"
	if err := publisher.writeArchiveFile(ctx, "release:"+suite.Name(), relpath, buf.Bytes()); err != nil {
		return err
	}

	if publisher.signer != nil {
		abspath := filepath.Join(publisher.config.ArchiveRoot, filepath.FromSlash(relpath))
		if err := publisher.signer.Sign(ctx, abspath); err != nil {
			return Error.Wrap(err)
		}
	}

	publisher.log.Info("release written",
		zap.String("suite", suite.Name()),
		zap.Int("indexes", len(entries)))
	return nil
}

func joinComponents(components []archive.Component) string {
	names := make([]string, len(components))
	for i, component := range components {
		names[i] = string(component)
	}
	return strings.Join(names, " ")
}

func (config *Config) series(name string) (SeriesConfig, bool) {
	for _, series := range config.Series {
		if series.Name == name {
			return series, true
		}
	}
	return SeriesConfig{}, false
}
