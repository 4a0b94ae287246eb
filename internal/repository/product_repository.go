package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"product-admin/internal/domain"

	"github.com/google/uuid"
)

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	DefaultSortBy   = "created_at"
)

// sortColumns maps accepted sort keys to their column. Keys used by the
// listing table are accepted next to the column names.
var sortColumns = map[string]string{
	"name":          "name",
	"product_name":  "name",
	"price":         "price",
	"product_price": "price",
	"created_at":    "created_at",
	"createdAt":     "created_at",
}

// ListOptions controls pagination, sorting and filtering of List
type ListOptions struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder SortOrder
	Search    string
}

// Normalize clamps the options to the values List actually uses
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}

	column, ok := sortColumns[o.SortBy]
	if !ok {
		column = DefaultSortBy
	}
	o.SortBy = column

	switch SortOrder(strings.ToUpper(string(o.SortOrder))) {
	case SortOrderDesc:
		o.SortOrder = SortOrderDesc
	default:
		o.SortOrder = SortOrderAsc
	}

	o.Search = strings.TrimSpace(o.Search)
	return o
}

// ProductRepository defines the interface for product and product image data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, opts ListOptions) ([]*domain.Product, int, error)

	CreateImage(ctx context.Context, image *domain.ProductImage) error
	DeleteImagesByProduct(ctx context.Context, productID uuid.UUID) error
	ImagePaths(ctx context.Context) (map[string]struct{}, error)

	// WithinTx runs fn against a repository bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(repo ProductRepository) error) error
}

// DBTX is the subset of *sql.DB and *sql.Tx used by the repository
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type productRepository struct {
	db   DBTX
	pool *sql.DB // nil when bound to a transaction
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db, pool: db}
}

func persistenceError(action string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", action, domain.ErrPersistence, err)
}

// WithinTx runs fn inside a transaction. Nested calls reuse the outer one.
func (r *productRepository) WithinTx(ctx context.Context, fn func(repo ProductRepository) error) (err error) {
	if r.pool == nil {
		return fn(r)
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&productRepository{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, persistenceError("roll back transaction", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("commit transaction", err)
	}

	return nil
}

// Create inserts a new product, assigning its ID and timestamps when unset
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}

	query := `
		INSERT INTO products (id, name, description, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		return persistenceError("create product", err)
	}

	return nil
}

// Update writes the scalar fields of an existing product
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	product.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE products
		SET name = $2, description = $3, price = $4, updated_at = $5
		WHERE id = $1
		RETURNING created_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.UpdatedAt,
	).Scan(&product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrProductNotFound
		}
		return persistenceError("update product", err)
	}

	return nil
}

// Delete removes a product together with its image rows
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.DeleteImagesByProduct(ctx, id); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return persistenceError("delete product", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistenceError("get rows affected", err)
	}

	if rowsAffected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a product with all of its images ordered by position
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), price, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	product := &domain.Product{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, persistenceError("find product by ID", err)
	}

	images, err := r.imagesByProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Images = images

	return product, nil
}

func (r *productRepository) imagesByProduct(ctx context.Context, productID uuid.UUID) ([]domain.ProductImage, error) {
	query := `
		SELECT id, product_id, path, is_primary, position, created_at
		FROM product_images
		WHERE product_id = $1
		ORDER BY position, created_at
	`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, persistenceError("list product images", err)
	}
	defer rows.Close()

	images := []domain.ProductImage{}
	for rows.Next() {
		var img domain.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.Path, &img.IsPrimary, &img.Position, &img.CreatedAt); err != nil {
			return nil, persistenceError("scan product image", err)
		}
		images = append(images, img)
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterate product images", err)
	}

	return images, nil
}

// List retrieves one page of products. Each product carries at most one
// image: the primary one, or its first image when none is flagged.
func (r *productRepository) List(ctx context.Context, opts ListOptions) ([]*domain.Product, int, error) {
	opts = opts.Normalize()

	whereClause := ""
	args := []any{}
	argIndex := 1

	if opts.Search != "" {
		whereClause = fmt.Sprintf("WHERE p.name ILIKE $%d OR p.description ILIKE $%d", argIndex, argIndex)
		args = append(args, "%"+escapeLike(opts.Search)+"%")
		argIndex++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products p %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, persistenceError("count products", err)
	}

	offset := (opts.Page - 1) * opts.PageSize

	// sort column and direction come from allow-lists, never from input
	query := fmt.Sprintf(`
		SELECT p.id, p.name, COALESCE(p.description, ''), p.price, p.created_at, p.updated_at,
		       pi.id, pi.path, pi.is_primary, pi.position, pi.created_at
		FROM products p
		LEFT JOIN LATERAL (
			SELECT id, path, is_primary, position, created_at
			FROM product_images
			WHERE product_id = p.id
			ORDER BY is_primary DESC, position, created_at
			LIMIT 1
		) pi ON TRUE
		%s
		ORDER BY p.%s %s, p.id
		LIMIT $%d OFFSET $%d
	`, whereClause, opts.SortBy, opts.SortOrder, argIndex, argIndex+1)

	args = append(args, opts.PageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, persistenceError("list products", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product := &domain.Product{}
		var (
			imageID        uuid.NullUUID
			imagePath      sql.NullString
			imagePrimary   sql.NullBool
			imagePosition  sql.NullInt64
			imageCreatedAt sql.NullTime
		)

		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Description,
			&product.Price,
			&product.CreatedAt,
			&product.UpdatedAt,
			&imageID,
			&imagePath,
			&imagePrimary,
			&imagePosition,
			&imageCreatedAt,
		)
		if err != nil {
			return nil, 0, persistenceError("scan product", err)
		}

		product.Images = []domain.ProductImage{}
		if imageID.Valid {
			product.Images = append(product.Images, domain.ProductImage{
				ID:        imageID.UUID,
				ProductID: product.ID,
				Path:      imagePath.String,
				IsPrimary: imagePrimary.Bool,
				Position:  int(imagePosition.Int64),
				CreatedAt: imageCreatedAt.Time,
			})
		}

		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, persistenceError("iterate products", err)
	}

	return products, total, nil
}

// CreateImage inserts an image row for an existing product
func (r *productRepository) CreateImage(ctx context.Context, image *domain.ProductImage) error {
	if image.ID == uuid.Nil {
		image.ID = uuid.New()
	}
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO product_images (id, product_id, path, is_primary, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		image.ID,
		image.ProductID,
		image.Path,
		image.IsPrimary,
		image.Position,
		image.CreatedAt,
	)
	if err != nil {
		return persistenceError("create product image", err)
	}

	return nil
}

// DeleteImagesByProduct removes every image row owned by productID
func (r *productRepository) DeleteImagesByProduct(ctx context.Context, productID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = $1`, productID); err != nil {
		return persistenceError("delete product images", err)
	}
	return nil
}

// ImagePaths returns the set of every stored path referenced by an image row
func (r *productRepository) ImagePaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT path FROM product_images`)
	if err != nil {
		return nil, persistenceError("list image paths", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, persistenceError("scan image path", err)
		}
		paths[p] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterate image paths", err)
	}

	return paths, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
