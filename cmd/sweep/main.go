package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"product-admin/internal/config"
	"product-admin/internal/database"
	"product-admin/internal/logger"
	"product-admin/internal/repository"
	"product-admin/internal/service"
	"product-admin/internal/storage"

	"go.uber.org/zap"
)

// sweep removes product image blobs that no image row references.
// It reads the same configuration as the API and is meant to run from cron.
func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbService, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbService.Close()

	images, err := storage.NewFileSystem(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize image storage", zap.Error(err))
	}

	reconciler := service.NewReconciler(
		repository.NewProductRepository(dbService.DB()),
		images,
		cfg.Storage.ImageFolder,
		log,
	)

	report, err := reconciler.Sweep(ctx, cfg.Sweep.GracePeriod)
	if err != nil {
		log.Fatal("Orphan sweep failed", zap.Error(err))
	}

	if report.Failed > 0 {
		log.Warn("Some orphaned images could not be deleted", zap.Int("failed", report.Failed))
	}
}
