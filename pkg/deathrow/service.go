// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

package deathrow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"soyuz.io/soyuz/internal/sync2"
	"soyuz.io/soyuz/pkg/archivefile"
)

// Service periodically reaps expired publications and archive files.
type Service struct {
	log   *zap.Logger
	row   *DeathRow
	files *archivefile.Manager

	Loop *sync2.Cycle
}

// NewService creates a reaper service ticking at interval.
func NewService(log *zap.Logger, row *DeathRow, files *archivefile.Manager, interval time.Duration) *Service {
	return &Service{
		log:   log,
		row:   row,
		files: files,
		Loop:  sync2.NewCycle(interval),
	}
}

// Run runs the reaper until the context is canceled. A failing pass is
// logged and the loop keeps ticking.
func (service *Service) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return service.Loop.Run(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()

		summary, err := service.row.Reap(ctx, now)
		if err != nil {
			service.log.Error("publication reaping failed", zap.Error(err))
		}

		reapedFiles, err := service.files.Reap(ctx, now)
		if err != nil {
			service.log.Error("archive file reaping failed", zap.Error(err))
		}

		if summary.Reaped > 0 || reapedFiles > 0 {
			service.log.Info("reaper pass complete",
				zap.Int("publications", summary.Reaped),
				zap.Int64("bytes freed", summary.Freed),
				zap.Int("archive files", reapedFiles))
		}
		return nil
	})
}

// Close stops the service loop.
func (service *Service) Close() error {
	service.Loop.Close()
	return nil
}
