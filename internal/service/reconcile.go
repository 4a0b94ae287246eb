package service

import (
	"context"
	"fmt"
	"time"

	"product-admin/internal/repository"
	"product-admin/internal/storage"

	"go.uber.org/zap"
)

// SweepReport summarizes one orphan sweep
type SweepReport struct {
	Scanned int
	Deleted int
	Failed  int
}

// Reconciler removes image blobs that no image row references. Blobs are
// written before their rows commit, so only blobs older than the grace
// period are considered.
type Reconciler struct {
	repo   repository.ProductRepository
	store  storage.ImageStore
	folder string
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciler creates a new Reconciler for the given image folder
func NewReconciler(repo repository.ProductRepository, store storage.ImageStore, folder string, logger *zap.Logger) *Reconciler {
	if folder == "" {
		folder = DefaultImageFolder
	}
	return &Reconciler{
		repo:   repo,
		store:  store,
		folder: folder,
		logger: logger,
		now:    time.Now,
	}
}

// Sweep deletes unreferenced blobs older than gracePeriod
func (r *Reconciler) Sweep(ctx context.Context, gracePeriod time.Duration) (SweepReport, error) {
	var report SweepReport

	blobs, err := r.store.List(ctx, r.folder)
	if err != nil {
		return report, fmt.Errorf("failed to list stored images: %w", err)
	}

	referenced, err := r.repo.ImagePaths(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load referenced images: %w", err)
	}

	cutoff := r.now().Add(-gracePeriod)

	for _, blob := range blobs {
		report.Scanned++

		if _, ok := referenced[blob.Path]; ok {
			continue
		}
		if blob.ModTime.After(cutoff) {
			continue
		}

		if err := r.store.Delete(ctx, blob.Path); err != nil {
			report.Failed++
			r.logger.Warn("Failed to delete orphaned image",
				zap.String("path", blob.Path),
				zap.Error(err),
			)
			continue
		}

		report.Deleted++
		r.logger.Debug("Deleted orphaned image", zap.String("path", blob.Path))
	}

	r.logger.Info("Orphan sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed),
	)

	return report, nil
}
