// Copyright (C) 2026 Soyuz Archive Project.
// See LICENSE for copying information.

// Package queue turns accepted uploads into pending publications.
package queue

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"soyuz.io/soyuz/pkg/archive"
)

var (
	// Error is the default queue errs class.
	Error = errs.Class("queue")

	mon = monkit.Package()
)

// Summary counts one processing pass.
type Summary struct {
	Processed int
	Failed    int
}

// Processor drains the accepted-upload queue.
type Processor struct {
	log     *zap.Logger
	uploads archive.Uploads
	pubs    archive.Publications
}

// NewProcessor creates a Processor.
func NewProcessor(log *zap.Logger, uploads archive.Uploads, pubs archive.Publications) *Processor {
	return &Processor{
		log:     log,
		uploads: uploads,
		pubs:    pubs,
	}
}

// ProcessAccepted creates a pending publication for every accepted
// upload, oldest first. A failing entry is marked failed with its reason
// and left for operator attention; the pass continues.
func (processor *Processor) ProcessAccepted(ctx context.Context) (summary Summary, err error) {
	defer mon.Task()(&ctx)(&err)

	accepted, err := processor.uploads.Accepted(ctx)
	if err != nil {
		return summary, err
	}

	for _, upload := range accepted {
		now := time.Now().UTC()
		if err := processor.processUpload(ctx, upload, now); err != nil {
			processor.log.Error("upload failed",
				zap.Int64("id", upload.ID),
				zap.String("name", upload.Name),
				zap.String("version", upload.Version),
				zap.Error(err))
			if err := processor.uploads.MarkFailed(ctx, upload.ID, now, err.Error()); err != nil {
				return summary, err
			}
			summary.Failed++
			continue
		}
		if err := processor.uploads.MarkDone(ctx, upload.ID, now); err != nil {
			return summary, err
		}
		summary.Processed++
	}

	if summary.Processed > 0 || summary.Failed > 0 {
		processor.log.Info("accepted queue drained",
			zap.Int("processed", summary.Processed),
			zap.Int("failed", summary.Failed))
	}
	return summary, nil
}

func (processor *Processor) processUpload(ctx context.Context, upload *archive.Upload, now time.Time) error {
	if len(upload.Files) == 0 {
		return Error.New("upload has no files")
	}
	if upload.Name == "" || upload.Version == "" {
		return Error.New("upload is missing name or version")
	}

	format := upload.Format
	if format == "" {
		format = archive.FormatPool
	}
	return processor.pubs.Create(ctx, &archive.Publication{
		Kind:        upload.Kind,
		Name:        upload.Name,
		Version:     upload.Version,
		Component:   upload.Component,
		Suite:       upload.Suite,
		Status:      archive.StatusPending,
		Format:      format,
		Files:       upload.Files,
		DateCreated: now,
	})
}
