// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package publish

import (
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/errs"
	yaml "gopkg.in/yaml.v2"

	"soyuz.io/soyuz/pkg/archive"
)

// ErrConfig is returned for configuration problems. Configuration errors
// abort a run before any mutation.
var ErrConfig = errs.Class("publish config")

// Duration is a time.Duration that unmarshals from YAML strings like
// "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return ErrConfig.Wrap(err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// SeriesConfig describes one distro series the archive publishes.
type SeriesConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Config describes one archive.
type Config struct {
	// ArchiveRoot contains pool/ and dists/.
	ArchiveRoot string `yaml:"archive_root"`

	// ContentRoot is where the content store keeps its blobs. Defaults
	// to <archive_root>/.store.
	ContentRoot string `yaml:"content_root,omitempty"`

	// DatabasePath is the bookkeeping database. Defaults to
	// <archive_root>/soyuz.db.
	DatabasePath string `yaml:"database_path,omitempty"`

	Origin string `yaml:"origin"`
	Label  string `yaml:"label"`

	// Components in priority order; the first component owning a shared
	// pool file holds the regular file.
	Components []archive.Component `yaml:"components"`

	Architectures []string `yaml:"architectures"`

	Series []SeriesConfig `yaml:"series"`

	// StayOfExecution is the delay between superseding a file and it
	// becoming eligible for physical deletion.
	StayOfExecution Duration `yaml:"stay_of_execution"`

	// LockPath overrides the default publisher lock location.
	LockPath string `yaml:"lock_path,omitempty"`
}

// LoadConfig reads and validates an archive configuration. Unknown keys
// and malformed YAML are fatal; nothing is partially applied.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrConfig.Wrap(err)
	}
	var config Config
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return nil, ErrConfig.Wrap(err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the configuration for completeness.
func (config *Config) Validate() error {
	switch {
	case config.ArchiveRoot == "":
		return ErrConfig.New("archive_root is required")
	case len(config.Components) == 0:
		return ErrConfig.New("at least one component is required")
	case len(config.Architectures) == 0:
		return ErrConfig.New("at least one architecture is required")
	case len(config.Series) == 0:
		return ErrConfig.New("at least one series is required")
	}
	seen := map[archive.Component]bool{}
	for _, component := range config.Components {
		if seen[component] {
			return ErrConfig.New("duplicate component %q", component)
		}
		seen[component] = true
	}
	if config.StayOfExecution <= 0 {
		config.StayOfExecution = Duration(24 * time.Hour)
	}
	if config.ContentRoot == "" {
		config.ContentRoot = filepath.Join(config.ArchiveRoot, ".store")
	}
	if config.DatabasePath == "" {
		config.DatabasePath = filepath.Join(config.ArchiveRoot, "soyuz.db")
	}
	return nil
}

// Order returns the component priority order.
func (config *Config) Order() archive.Order {
	return archive.Order(config.Components)
}

// HasSeries reports whether the archive publishes the named series.
func (config *Config) HasSeries(name string) bool {
	for _, series := range config.Series {
		if series.Name == name {
			return true
		}
	}
	return false
}

// Stay returns the stay of execution as a time.Duration.
func (config *Config) Stay() time.Duration {
	return time.Duration(config.StayOfExecution)
}
