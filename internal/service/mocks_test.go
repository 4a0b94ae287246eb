package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"product-admin/internal/domain"
	"product-admin/internal/repository"
	"product-admin/internal/storage"

	"github.com/google/uuid"
)

var (
	pngData  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	jpegData = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
	gifData  = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00!")
	svgData  = []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"></svg>`)
	textData = []byte("just some plain text, definitely not an image")
)

// Mock repository keeping products in memory. WithinTx snapshots the state
// and restores it when the callback fails.
type mockProductRepository struct {
	products map[uuid.UUID]*domain.Product
	images   map[uuid.UUID][]domain.ProductImage

	createImageCalls  int
	failCreateImageAt int // 1-based call number, 0 disables
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{
		products: make(map[uuid.UUID]*domain.Product),
		images:   make(map[uuid.UUID][]domain.ProductImage),
	}
}

func (m *mockProductRepository) WithinTx(ctx context.Context, fn func(repo repository.ProductRepository) error) error {
	products := make(map[uuid.UUID]*domain.Product, len(m.products))
	for id, p := range m.products {
		cp := *p
		products[id] = &cp
	}
	images := make(map[uuid.UUID][]domain.ProductImage, len(m.images))
	for id, imgs := range m.images {
		images[id] = append([]domain.ProductImage(nil), imgs...)
	}

	if err := fn(m); err != nil {
		m.products = products
		m.images = images
		return err
	}
	return nil
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now()
	}
	product.UpdatedAt = product.CreatedAt

	cp := *product
	cp.Images = nil
	m.products[product.ID] = &cp
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) error {
	existing, ok := m.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	existing.Name = product.Name
	existing.Price = product.Price
	existing.Description = product.Description
	existing.UpdatedAt = time.Now()
	return nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(m.images, id)
	delete(m.products, id)
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	cp.Images = append([]domain.ProductImage{}, m.images[id]...)
	return &cp, nil
}

func (m *mockProductRepository) List(ctx context.Context, opts repository.ListOptions) ([]*domain.Product, int, error) {
	opts = opts.Normalize()

	var matched []*domain.Product
	for _, p := range m.products {
		if opts.Search != "" &&
			!strings.Contains(strings.ToLower(p.Name), strings.ToLower(opts.Search)) &&
			!strings.Contains(strings.ToLower(p.Description), strings.ToLower(opts.Search)) {
			continue
		}
		matched = append(matched, p)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less bool
		switch opts.SortBy {
		case "name":
			less = a.Name < b.Name
		case "price":
			less = a.Price.LessThan(b.Price)
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if opts.SortOrder == repository.SortOrderDesc {
			return !less
		}
		return less
	})

	total := len(matched)
	start := (opts.Page - 1) * opts.PageSize
	if start > total {
		start = total
	}
	end := start + opts.PageSize
	if end > total {
		end = total
	}

	page := []*domain.Product{}
	for _, p := range matched[start:end] {
		cp := *p
		cp.Images = []domain.ProductImage{}
		for _, img := range m.images[p.ID] {
			if img.IsPrimary {
				cp.Images = append(cp.Images, img)
				break
			}
		}
		if len(cp.Images) == 0 && len(m.images[p.ID]) > 0 {
			cp.Images = append(cp.Images, m.images[p.ID][0])
		}
		page = append(page, &cp)
	}

	return page, total, nil
}

func (m *mockProductRepository) CreateImage(ctx context.Context, image *domain.ProductImage) error {
	m.createImageCalls++
	if m.failCreateImageAt > 0 && m.createImageCalls == m.failCreateImageAt {
		return fmt.Errorf("failed to create product image: %w", domain.ErrPersistence)
	}
	if image.ID == uuid.Nil {
		image.ID = uuid.New()
	}
	m.images[image.ProductID] = append(m.images[image.ProductID], *image)
	return nil
}

func (m *mockProductRepository) DeleteImagesByProduct(ctx context.Context, productID uuid.UUID) error {
	delete(m.images, productID)
	return nil
}

func (m *mockProductRepository) ImagePaths(ctx context.Context) (map[string]struct{}, error) {
	paths := make(map[string]struct{})
	for _, imgs := range m.images {
		for _, img := range imgs {
			paths[img.Path] = struct{}{}
		}
	}
	return paths, nil
}

func (m *mockProductRepository) imageCount() int {
	n := 0
	for _, imgs := range m.images {
		n += len(imgs)
	}
	return n
}

// Mock image store keeping blobs in memory
type mockImageStore struct {
	blobs    map[string][]byte
	modTimes map[string]time.Time

	saveCalls  int
	failSaveAt int // 1-based call number, 0 disables
	deleteErr  error
}

func newMockImageStore() *mockImageStore {
	return &mockImageStore{
		blobs:    make(map[string][]byte),
		modTimes: make(map[string]time.Time),
	}
}

func (m *mockImageStore) Save(ctx context.Context, data []byte, folder, ext string) (string, error) {
	m.saveCalls++
	if m.failSaveAt > 0 && m.saveCalls == m.failSaveAt {
		return "", fmt.Errorf("%w: disk full", domain.ErrStorage)
	}
	path := folder + "/" + uuid.NewString() + ext
	m.blobs[path] = data
	m.modTimes[path] = time.Now()
	return path, nil
}

func (m *mockImageStore) Delete(ctx context.Context, path string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.blobs, path)
	delete(m.modTimes, path)
	return nil
}

func (m *mockImageStore) List(ctx context.Context, folder string) ([]storage.StoredBlob, error) {
	var blobs []storage.StoredBlob
	for path := range m.blobs {
		if strings.HasPrefix(path, folder+"/") {
			blobs = append(blobs, storage.StoredBlob{Path: path, ModTime: m.modTimes[path]})
		}
	}
	return blobs, nil
}

func (m *mockImageStore) URL(path string) string {
	return "http://localhost:8080/storage/" + path
}

func (m *mockImageStore) has(path string, data []byte) bool {
	blob, ok := m.blobs[path]
	return ok && bytes.Equal(blob, data)
}
