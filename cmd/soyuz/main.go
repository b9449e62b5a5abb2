// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v2"

	"soyuz.io/soyuz/pkg/archive"
	"soyuz.io/soyuz/pkg/archivefile"
	"soyuz.io/soyuz/pkg/content"
	"soyuz.io/soyuz/pkg/deathrow"
	"soyuz.io/soyuz/pkg/pool"
	"soyuz.io/soyuz/pkg/process"
	"soyuz.io/soyuz/pkg/publish"
	"soyuz.io/soyuz/pkg/queue"
	"soyuz.io/soyuz/soyuzdb"
)

var (
	rootCmd = &cobra.Command{
		Use:   "soyuz",
		Short: "Soyuz archive publisher",
	}
	publishCmd = &cobra.Command{
		Use:   "publish",
		Short: "Run the publication pipeline",
		RunE:  cmdPublish,
	}
	reapCmd = &cobra.Command{
		Use:   "reap",
		Short: "Remove expired pool files and archive files",
		RunE:  cmdReap,
	}
	processAcceptedCmd = &cobra.Command{
		Use:   "process-accepted",
		Short: "Turn accepted uploads into pending publications",
		RunE:  cmdProcessAccepted,
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Write an initial archive config and database",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}

	archiveConfig string

	publishFlags struct {
		careful     bool
		suites      []string
		ppa         string
		copyArchive string
	}
	reapFlags struct {
		interval time.Duration
		workers  int
	}
)

func init() {
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(reapCmd)
	rootCmd.AddCommand(processAcceptedCmd)
	rootCmd.AddCommand(setupCmd)

	rootCmd.PersistentFlags().StringVar(&archiveConfig, "archive-config", "soyuz.yaml", "archive configuration file")

	publishCmd.Flags().BoolVar(&publishFlags.careful, "careful", false, "reprocess already-published records as well")
	publishCmd.Flags().StringArrayVar(&publishFlags.suites, "suite", nil, "publish only this suite; repeatable")
	publishCmd.Flags().StringVar(&publishFlags.ppa, "ppa", "", "publish the named PPA instead of the primary archive")
	publishCmd.Flags().StringVar(&publishFlags.copyArchive, "copy-archives", "", "publish the named copy archive instead of the primary archive")

	reapCmd.Flags().DurationVar(&reapFlags.interval, "interval", 0, "keep reaping on this interval instead of one pass")
	reapCmd.Flags().IntVar(&reapFlags.workers, "workers", 4, "concurrent reap workers")
}

func main() {
	process.Execute(rootCmd)
}

// services bundles everything a command needs for one archive.
type services struct {
	log    *zap.Logger
	config *publish.Config
	db     *soyuzdb.DB
	pool   *pool.Pool
	files  *archivefile.Manager
}

func openServices(ctx context.Context, configPath string) (*services, error) {
	log, err := process.NewLogger()
	if err != nil {
		return nil, err
	}

	config, err := publish.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	db, err := soyuzdb.Open(log.Named("db"), config.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateToLatest(ctx); err != nil {
		return nil, errs.Combine(err, db.Close())
	}

	store, err := content.NewFileStore(config.ContentRoot)
	if err != nil {
		return nil, errs.Combine(err, db.Close())
	}

	p, err := pool.New(log.Named("pool"), filepath.Join(config.ArchiveRoot, "pool"), config.Order(), store)
	if err != nil {
		return nil, errs.Combine(err, db.Close())
	}

	return &services{
		log:    log,
		config: config,
		db:     db,
		pool:   p,
		files:  archivefile.NewManager(log.Named("files"), config.ArchiveRoot, db.ArchiveFiles()),
	}, nil
}

func (s *services) close() error {
	return errs.Combine(s.db.Close(), s.log.Sync())
}

// resolveArchiveConfig maps the archive selection flags onto a config
// file. A PPA or copy archive keeps its config beside the primary one,
// under ppa/<name>.yaml or copy/<name>.yaml, so naming one either loads
// that archive or fails before any mutation; it can never fall through
// to the primary archive.
func resolveArchiveConfig(primary, ppa, copyArchive string) (string, error) {
	if ppa != "" && copyArchive != "" {
		return "", errs.New("--ppa and --copy-archives are mutually exclusive")
	}
	switch {
	case ppa != "":
		return filepath.Join(filepath.Dir(primary), "ppa", ppa+".yaml"), nil
	case copyArchive != "":
		return filepath.Join(filepath.Dir(primary), "copy", copyArchive+".yaml"), nil
	}
	return primary, nil
}

func cmdPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	configPath, err := resolveArchiveConfig(archiveConfig, publishFlags.ppa, publishFlags.copyArchive)
	if err != nil {
		return err
	}

	var allowed []archive.Suite
	for _, name := range publishFlags.suites {
		suite, err := archive.ParseSuite(name)
		if err != nil {
			return err
		}
		allowed = append(allowed, suite)
	}

	s, err := openServices(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() { _ = s.close() }()

	for _, suite := range allowed {
		if !s.config.HasSeries(suite.Series) {
			return publish.ErrConfig.New("unknown series %q", suite.Series)
		}
	}

	publisher := publish.New(s.log.Named("publisher"), s.config, s.pool,
		s.db.Publications(), s.files, nil)
	summary, err := publisher.Run(ctx, publish.Options{
		Careful:       publishFlags.careful,
		AllowedSuites: allowed,
	})
	if err != nil {
		return err
	}

	// Per-item failures surface through logs and the summary only; the
	// run itself completed.
	fmt.Printf("published %d, failed %d, dominated %d\n",
		summary.Published, summary.Failed, summary.Dominated)
	return nil
}

func cmdReap(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openServices(ctx, archiveConfig)
	if err != nil {
		return err
	}
	defer func() { _ = s.close() }()

	row := deathrow.New(s.log.Named("deathrow"), s.pool, s.db.Publications(), reapFlags.workers, s.config.LockPath)

	if reapFlags.interval > 0 {
		service := deathrow.NewService(s.log.Named("reaper"), row, s.files, reapFlags.interval)
		defer func() { _ = service.Close() }()
		return service.Run(ctx)
	}

	now := time.Now().UTC()
	summary, err := row.Reap(ctx, now)
	if err != nil {
		return err
	}
	reapedFiles, err := s.files.Reap(ctx, now)
	if err != nil {
		return err
	}
	fmt.Printf("reaped %d publications (%d bytes), %d archive files\n",
		summary.Reaped, summary.Freed, reapedFiles)
	return nil
}

func cmdProcessAccepted(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openServices(ctx, archiveConfig)
	if err != nil {
		return err
	}
	defer func() { _ = s.close() }()

	processor := queue.NewProcessor(s.log.Named("queue"), s.db.Uploads(), s.db.Publications())
	summary, err := processor.ProcessAccepted(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("processed %d, failed %d\n", summary.Processed, summary.Failed)
	return nil
}

func cmdSetup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if _, err := os.Stat(archiveConfig); err == nil {
		return errs.New("%s already exists", archiveConfig)
	}

	config := &publish.Config{
		ArchiveRoot:   "archive",
		Origin:        "Soyuz",
		Label:         "Soyuz",
		Components:    []archive.Component{"main", "universe"},
		Architectures: []string{"amd64"},
		Series:        []publish.SeriesConfig{{Name: "nova"}},
	}
	if err := config.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return errs.Wrap(err)
	}
	if err := os.WriteFile(archiveConfig, data, 0o644); err != nil {
		return errs.Wrap(err)
	}

	if err := os.MkdirAll(config.ArchiveRoot, 0o755); err != nil {
		return errs.Wrap(err)
	}
	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	db, err := soyuzdb.Open(log.Named("db"), config.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.MigrateToLatest(ctx)
}
