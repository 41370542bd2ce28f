package asset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retailstore/service/internal/storage"
)

// FileStore lists and deletes stored files.
type FileStore interface {
	Deleter
	List(ctx context.Context, opts storage.ListOptions) ([]storage.File, error)
}

// ReferenceSource reports which stored images records still point at.
// LegacyImageURLs covers records that hold a url but no fileId.
type ReferenceSource interface {
	ReferencedFileIDs(ctx context.Context) (map[string]struct{}, error)
	LegacyImageURLs(ctx context.Context) (map[string]struct{}, error)
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Scanned  int
	Orphaned []string
	Deleted  []string
	Failed   []string
}

// Sweeper deletes stored images that no record references, e.g. uploads from
// sessions abandoned before submit or replaced images whose cleanup failed.
type Sweeper struct {
	store    FileStore
	refs     ReferenceSource
	log      logrus.FieldLogger
	folder   string
	grace    time.Duration
	pageSize int
	now      func() time.Time
}

// NewSweeper creates a Sweeper over folder. Files younger than grace are
// skipped so that uploads still waiting for their submit survive.
func NewSweeper(store FileStore, refs ReferenceSource, log logrus.FieldLogger, folder string, grace time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		refs:     refs,
		log:      log,
		folder:   folder,
		grace:    grace,
		pageSize: 100,
		now:      time.Now,
	}
}

// Sweep lists the folder, then loads the referenced ids, then deletes the
// difference unless dryRun is set. Listing first means a file referenced
// while the listing runs is still seen as referenced.
func (s *Sweeper) Sweep(ctx context.Context, dryRun bool) (SweepReport, error) {
	var files []storage.File
	for skip := 0; ; skip += s.pageSize {
		page, err := s.store.List(ctx, storage.ListOptions{Path: s.folder, Skip: skip, Limit: s.pageSize})
		if err != nil {
			return SweepReport{}, fmt.Errorf("list stored files: %w", err)
		}
		files = append(files, page...)
		if len(page) < s.pageSize {
			break
		}
	}

	referenced, err := s.refs.ReferencedFileIDs(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("load referenced file ids: %w", err)
	}
	legacy, err := s.refs.LegacyImageURLs(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("load legacy image urls: %w", err)
	}

	report := SweepReport{Scanned: len(files)}
	cutoff := s.now().Add(-s.grace)
	for _, f := range files {
		if _, ok := referenced[f.FileID]; ok {
			continue
		}
		if _, ok := legacy[f.URL]; ok {
			continue
		}
		if f.CreatedAt.After(cutoff) {
			continue
		}
		report.Orphaned = append(report.Orphaned, f.FileID)
		if dryRun {
			continue
		}

		log := s.log.WithFields(logrus.Fields{"file_id": f.FileID, "path": f.FilePath})
		if err := s.store.Delete(ctx, f.FileID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.WithError(err).Warn("could not delete orphaned image")
			report.Failed = append(report.Failed, f.FileID)
			continue
		}
		log.Info("deleted orphaned image")
		report.Deleted = append(report.Deleted, f.FileID)
	}
	return report, nil
}
