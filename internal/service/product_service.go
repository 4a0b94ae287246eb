package service

import (
	"context"
	"fmt"

	"product-admin/internal/domain"
	"product-admin/internal/repository"
	"product-admin/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultImageFolder is the storage folder product images are written to
const DefaultImageFolder = "product_images"

// Upload is a single uploaded file as received from the client
type Upload struct {
	Filename string
	Data     []byte
}

// ProductInput carries the raw form values for create and update
type ProductInput struct {
	Name         string
	Price        string
	Description  string
	Images       []Upload
	PrimaryIndex string
}

// ProductService defines the product create/update/delete workflow
type ProductService interface {
	CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error)
	// UpdateProduct replaces the scalar fields and the entire image set.
	UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
}

// Options configures the product service
type Options struct {
	ImageFolder   string
	MaxImageBytes int
}

type productService struct {
	repo      repository.ProductRepository
	images    storage.ImageStore
	folder    string
	validator *productValidator
	logger    *zap.Logger
}

// NewProductService creates a new instance of ProductService
func NewProductService(
	repo repository.ProductRepository,
	images storage.ImageStore,
	opts Options,
	logger *zap.Logger,
) ProductService {
	if opts.ImageFolder == "" {
		opts.ImageFolder = DefaultImageFolder
	}

	return &productService{
		repo:      repo,
		images:    images,
		folder:    opts.ImageFolder,
		validator: newProductValidator(opts.MaxImageBytes),
		logger:    logger,
	}
}

// CreateProduct validates the input, then writes the product row and one
// image row per upload in a single transaction.
func (s *productService) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	valid, err := s.validator.Validate(in)
	if err != nil {
		return nil, err
	}

	product := &domain.Product{
		Name:        valid.name,
		Price:       valid.price,
		Description: valid.description,
	}

	var stored []string
	err = s.repo.WithinTx(ctx, func(tx repository.ProductRepository) error {
		if err := tx.Create(ctx, product); err != nil {
			return err
		}

		images, paths, err := s.storeImages(ctx, tx, product.ID, valid)
		stored = paths
		if err != nil {
			return err
		}

		product.Images = images
		return nil
	})
	if err != nil {
		s.releaseBlobs(ctx, stored)
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.Int("images", len(product.Images)),
	)

	return product, nil
}

// UpdateProduct validates the input, then updates the scalar fields and
// swaps the whole image set. Blobs of the previous set are released once
// the transaction has committed.
func (s *productService) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*domain.Product, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}

	valid, err := s.validator.Validate(in)
	if err != nil {
		return nil, err
	}

	var (
		product  *domain.Product
		oldPaths []string
		stored   []string
	)

	err = s.repo.WithinTx(ctx, func(tx repository.ProductRepository) error {
		current, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		oldPaths = current.ImagePaths()

		current.Name = valid.name
		current.Price = valid.price
		current.Description = valid.description

		if err := tx.Update(ctx, current); err != nil {
			return err
		}

		if err := tx.DeleteImagesByProduct(ctx, id); err != nil {
			return err
		}

		images, paths, err := s.storeImages(ctx, tx, id, valid)
		stored = paths
		if err != nil {
			return err
		}

		current.Images = images
		product = current
		return nil
	})
	if err != nil {
		s.releaseBlobs(ctx, stored)
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.releaseBlobs(ctx, oldPaths)

	s.logger.Info("Product updated",
		zap.String("product_id", id.String()),
		zap.Int("images", len(product.Images)),
		zap.Int("replaced_images", len(oldPaths)),
	)

	return product, nil
}

// DeleteProduct removes the image rows, the product row and finally the blobs
func (s *productService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	var paths []string

	err := s.repo.WithinTx(ctx, func(tx repository.ProductRepository) error {
		product, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		paths = product.ImagePaths()

		return tx.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.releaseBlobs(ctx, paths)

	s.logger.Info("Product deleted",
		zap.String("product_id", id.String()),
		zap.Int("images", len(paths)),
	)

	return nil
}

// GetProduct returns a product with all of its images
func (s *productService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// storeImages writes each blob and its row in input order. The returned
// paths include every blob written, also when a later step failed.
func (s *productService) storeImages(ctx context.Context, repo repository.ProductRepository, productID uuid.UUID, valid *validProduct) ([]domain.ProductImage, []string, error) {
	images := make([]domain.ProductImage, 0, len(valid.images))
	paths := make([]string, 0, len(valid.images))

	for index, upload := range valid.images {
		path, err := s.images.Save(ctx, upload.data, s.folder, upload.ext)
		if err != nil {
			return nil, paths, fmt.Errorf("failed to store image %d: %w", index, err)
		}
		paths = append(paths, path)

		image := domain.ProductImage{
			ProductID: productID,
			Path:      path,
			IsPrimary: index == valid.primaryIndex,
			Position:  index,
		}
		if err := repo.CreateImage(ctx, &image); err != nil {
			return nil, paths, err
		}

		images = append(images, image)
	}

	return images, paths, nil
}

// releaseBlobs deletes blobs on a best-effort basis. Leftovers are picked
// up by the orphan sweep.
func (s *productService) releaseBlobs(ctx context.Context, paths []string) {
	ctx = context.WithoutCancel(ctx)

	for _, path := range paths {
		if err := s.images.Delete(ctx, path); err != nil {
			s.logger.Warn("Failed to release image blob",
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
}
