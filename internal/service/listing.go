package service

import (
	"context"
	"fmt"

	"product-admin/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlaceholderImageURL is shown for products without any image
const PlaceholderImageURL = "https://via.placeholder.com/150"

// URLResolver turns a stored image path into a public URL
type URLResolver interface {
	URL(storedPath string) string
}

// ProductSummary is one row of the product table
type ProductSummary struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"product_name"`
	Price           decimal.Decimal `json:"product_price"`
	Description     string          `json:"product_description"`
	PrimaryImageURL string          `json:"primary_image"`
}

// ListParams are the listing parameters as sent by the table
type ListParams struct {
	Page      int
	PerPage   int
	SortBy    string
	SortOrder string
	Search    string
}

// ListingResult is one page of summaries plus the full matching count
type ListingResult struct {
	Data    []ProductSummary `json:"data"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// ListingQuery serves the read-only product table
type ListingQuery struct {
	repo repository.ProductRepository
	urls URLResolver
}

// NewListingQuery creates a new ListingQuery
func NewListingQuery(repo repository.ProductRepository, urls URLResolver) *ListingQuery {
	return &ListingQuery{repo: repo, urls: urls}
}

// List returns one page of product summaries
func (q *ListingQuery) List(ctx context.Context, params ListParams) (*ListingResult, error) {
	opts := repository.ListOptions{
		Page:      params.Page,
		PageSize:  params.PerPage,
		SortBy:    params.SortBy,
		SortOrder: repository.SortOrder(params.SortOrder),
		Search:    params.Search,
	}.Normalize()

	products, total, err := q.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	summaries := make([]ProductSummary, 0, len(products))
	for _, p := range products {
		imageURL := PlaceholderImageURL
		if img := p.PrimaryImage(); img != nil {
			imageURL = q.urls.URL(img.Path)
		}

		summaries = append(summaries, ProductSummary{
			ID:              p.ID,
			Name:            p.Name,
			Price:           p.Price,
			Description:     p.Description,
			PrimaryImageURL: imageURL,
		})
	}

	return &ListingResult{
		Data:    summaries,
		Total:   total,
		Page:    opts.Page,
		PerPage: opts.PageSize,
	}, nil
}
