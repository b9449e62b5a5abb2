// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"soyuz.io/soyuz/pkg/archive"
	"soyuz.io/soyuz/pkg/pool"
)

// GenerateIndexes is phase C: every dirty suite gets fresh Sources and
// Packages indexes under dists/, one set per configured component. The
// written paths are remembered for the Release files of phase D.
func (publisher *Publisher) GenerateIndexes(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	for _, suite := range publisher.DirtySuites() {
		if err := publisher.generateSuiteIndexes(ctx, suite); err != nil {
			return err
		}
	}
	return nil
}

func (publisher *Publisher) generateSuiteIndexes(ctx context.Context, suite archive.Suite) error {
	live, err := publisher.pubs.LiveInSuite(ctx, suite)
	if err != nil {
		return err
	}

	type sourceKey struct {
		component archive.Component
		name      string
		version   string
	}
	sources := map[sourceKey][]archive.PublishedFile{}
	binaries := map[archive.Component][]archive.PublishedFile{}
	for _, pub := range live {
		for _, file := range pub.Files {
			switch file.Kind {
			case archive.KindSource:
				k := sourceKey{file.Component, file.Name, file.Version}
				sources[k] = append(sources[k], file)
			case archive.KindBinary:
				binaries[file.Component] = append(binaries[file.Component], file)
			}
		}
	}

	for _, component := range publisher.config.Components {
		var keys []sourceKey
		for k := range sources {
			if k.component == component {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].name != keys[j].name {
				return keys[i].name < keys[j].name
			}
			return keys[i].version < keys[j].version
		})

		var buf bytes.Buffer
		for _, k := range keys {
			writeSourceStanza(&buf, k.name, k.version, component, sources[k])
		}
		relpath := path.Join("dists", suite.Name(), string(component), "source", "Sources.gz")
		if err := publisher.writeIndex(ctx, suite, relpath, gzipBytes(buf.Bytes())); err != nil {
			return err
		}

		for _, arch := range publisher.config.Architectures {
			var buf bytes.Buffer
			files := append([]archive.PublishedFile(nil), binaries[component]...)
			sort.Slice(files, func(i, j int) bool {
				if files[i].Name != files[j].Name {
					return files[i].Name < files[j].Name
				}
				return files[i].Version < files[j].Version
			})
			for _, file := range files {
				if file.Architecture != arch && file.Architecture != "all" {
					continue
				}
				writeBinaryStanza(&buf, file)
			}
			dir := path.Join("dists", suite.Name(), string(component), "binary-"+arch)
			if err := publisher.writeIndex(ctx, suite, path.Join(dir, "Packages"), buf.Bytes()); err != nil {
				return err
			}
			if err := publisher.writeIndex(ctx, suite, path.Join(dir, "Packages.gz"), gzipBytes(buf.Bytes())); err != nil {
				return err
			}
		}
	}

	publisher.log.Debug("indexes written",
		zap.String("suite", suite.Name()),
		zap.Int("files", len(publisher.indexes[suite])))
	return nil
}

// writeIndex atomically writes one index file under the archive root and
// registers it for Release digesting and lifecycle bookkeeping.
func (publisher *Publisher) writeIndex(ctx context.Context, suite archive.Suite, relpath string, data []byte) error {
	if err := publisher.writeArchiveFile(ctx, "index:"+suite.Name(), relpath, data); err != nil {
		return err
	}
	publisher.indexes[suite] = append(publisher.indexes[suite], relpath)
	return nil
}

// writeArchiveFile atomically writes one file under the archive root and
// records it in the named lifecycle container, superseding what it
// replaces.
func (publisher *Publisher) writeArchiveFile(ctx context.Context, container, relpath string, data []byte) error {
	abspath := filepath.Join(publisher.config.ArchiveRoot, filepath.FromSlash(relpath))
	if err := os.MkdirAll(filepath.Dir(abspath), 0o755); err != nil {
		return Error.Wrap(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abspath), ".index-*")
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Error.Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return Error.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return Error.Wrap(err)
	}
	if err := os.Rename(tmp.Name(), abspath); err != nil {
		return Error.Wrap(err)
	}

	if _, err := publisher.files.Supersede(ctx, container, relpath, publisher.config.Stay()); err != nil {
		return err
	}
	return nil
}

// poolDirectory is the pool subtree a source package's files live in,
// slash-separated as indexes require.
func poolDirectory(component archive.Component, source string) string {
	return path.Join("pool", string(component), pool.Prefix(source), source)
}

func writeSourceStanza(buf *bytes.Buffer, name, version string, component archive.Component, files []archive.PublishedFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })

	fmt.Fprintf(buf, "Package: %s\n", name)
	fmt.Fprintf(buf, "Version: %s\n", version)
	if files[0].Maintainer != "" {
		fmt.Fprintf(buf, "Maintainer: %s\n", files[0].Maintainer)
	}
	if files[0].Section != "" {
		fmt.Fprintf(buf, "Section: %s\n", files[0].Section)
	}
	fmt.Fprintf(buf, "Directory: %s\n", poolDirectory(component, name))
	fmt.Fprintf(buf, "Checksums-Sha1:\n")
	for _, file := range files {
		fmt.Fprintf(buf, " %s %d %s\n", file.Content.SHA1, file.Content.Size, file.Filename)
	}
	fmt.Fprintf(buf, "Checksums-Sha256:\n")
	for _, file := range files {
		fmt.Fprintf(buf, " %s %d %s\n", file.Content.SHA256, file.Content.Size, file.Filename)
	}
	fmt.Fprintf(buf, "\n")
}

func writeBinaryStanza(buf *bytes.Buffer, file archive.PublishedFile) {
	fmt.Fprintf(buf, "Package: %s\n", file.Name)
	fmt.Fprintf(buf, "Version: %s\n", file.Version)
	fmt.Fprintf(buf, "Architecture: %s\n", file.Architecture)
	if file.Maintainer != "" {
		fmt.Fprintf(buf, "Maintainer: %s\n", file.Maintainer)
	}
	if file.Section != "" {
		fmt.Fprintf(buf, "Section: %s\n", file.Section)
	}
	fmt.Fprintf(buf, "Filename: %s\n", path.Join(poolDirectory(file.Component, file.Name), file.Filename))
	fmt.Fprintf(buf, "Size: %d\n", file.Content.Size)
	fmt.Fprintf(buf, "SHA1: %s\n", file.Content.SHA1)
	fmt.Fprintf(buf, "SHA256: %s\n", file.Content.SHA256)
	fmt.Fprintf(buf, "\n")
}

func gzipBytes(data []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, _ = w.Write(data)
	_ = w.Close()
	return buf.Bytes()
}
