package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"product-admin/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func seedProducts(repo *mockProductRepository, count int) []*domain.Product {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	products := make([]*domain.Product, 0, count)
	for i := 0; i < count; i++ {
		p := &domain.Product{
			Name:      fmt.Sprintf("Product %02d", i),
			Price:     decimal.NewFromInt(int64(count - i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		_ = repo.Create(context.Background(), p)
		products = append(products, p)
	}
	return products
}

func TestListingQuery_Pagination(t *testing.T) {
	repo := newMockProductRepository()
	seedProducts(repo, 25)
	q := NewListingQuery(repo, newMockImageStore())

	result, err := q.List(context.Background(), ListParams{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(result.Data) != 10 || result.Total != 25 {
		t.Errorf("expected 10 of 25, got %d of %d", len(result.Data), result.Total)
	}

	result, _ = q.List(context.Background(), ListParams{Page: 3, PerPage: 10})
	if len(result.Data) != 5 || result.Total != 25 || result.Page != 3 {
		t.Errorf("expected 5 rows on page 3, got %d", len(result.Data))
	}

	result, _ = q.List(context.Background(), ListParams{Page: 9, PerPage: 10})
	if len(result.Data) != 0 || result.Total != 25 {
		t.Errorf("expected empty page past the end, got %d", len(result.Data))
	}
	if result.Data == nil {
		t.Errorf("empty page should encode as an empty list")
	}
}

func TestListingQuery_DefaultsAndClamping(t *testing.T) {
	repo := newMockProductRepository()
	seedProducts(repo, 3)
	q := NewListingQuery(repo, newMockImageStore())

	result, err := q.List(context.Background(), ListParams{Page: -2, PerPage: 0})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Page != 1 || result.PerPage != 10 {
		t.Errorf("expected page 1 / per page 10, got %d / %d", result.Page, result.PerPage)
	}

	result, _ = q.List(context.Background(), ListParams{PerPage: 1000})
	if result.PerPage != 100 {
		t.Errorf("expected per page capped at 100, got %d", result.PerPage)
	}
}

func TestListingQuery_ImageURLs(t *testing.T) {
	repo := newMockProductRepository()
	store := newMockImageStore()
	q := NewListingQuery(repo, store)
	ctx := context.Background()

	withImage := &domain.Product{Name: "A", Price: decimal.NewFromInt(1), CreatedAt: time.Now().Add(-time.Hour)}
	_ = repo.Create(ctx, withImage)
	_ = repo.CreateImage(ctx, &domain.ProductImage{ProductID: withImage.ID, Path: "product_images/a.png", Position: 0})
	_ = repo.CreateImage(ctx, &domain.ProductImage{ProductID: withImage.ID, Path: "product_images/b.png", IsPrimary: true, Position: 1})

	without := &domain.Product{Name: "B", Price: decimal.NewFromInt(2), CreatedAt: time.Now()}
	_ = repo.Create(ctx, without)

	result, err := q.List(ctx, ListParams{SortBy: "created_at", SortOrder: "asc"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(result.Data) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Data))
	}

	if got, want := result.Data[0].PrimaryImageURL, "http://localhost:8080/storage/product_images/b.png"; got != want {
		t.Errorf("primary image url = %q, want %q", got, want)
	}
	if result.Data[1].PrimaryImageURL != PlaceholderImageURL {
		t.Errorf("expected placeholder, got %q", result.Data[1].PrimaryImageURL)
	}
}

func TestListingQuery_SortAliases(t *testing.T) {
	repo := newMockProductRepository()
	seedProducts(repo, 5)
	q := NewListingQuery(repo, newMockImageStore())
	ctx := context.Background()

	byAlias, _ := q.List(ctx, ListParams{SortBy: "product_price", SortOrder: "desc"})
	byColumn, _ := q.List(ctx, ListParams{SortBy: "price", SortOrder: "DESC"})
	for i := range byAlias.Data {
		if byAlias.Data[i].ID != byColumn.Data[i].ID {
			t.Fatalf("alias and column sort disagree at row %d", i)
		}
	}
	if !byAlias.Data[0].Price.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected the most expensive product first, got %s", byAlias.Data[0].Price)
	}
}

// Property: an unknown sort field behaves exactly like created_at
func TestProperty_UnknownSortFieldFallsBack(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("unknown sort field orders like created_at", prop.ForAll(
		func(field string, desc bool) bool {
			if _, known := map[string]bool{
				"name": true, "product_name": true, "price": true,
				"product_price": true, "created_at": true, "createdAt": true,
			}[field]; known {
				return true
			}

			repo := newMockProductRepository()
			seedProducts(repo, 7)
			q := NewListingQuery(repo, newMockImageStore())

			order := "asc"
			if desc {
				order = "desc"
			}

			unknown, err := q.List(context.Background(), ListParams{SortBy: field, SortOrder: order})
			if err != nil {
				t.Logf("FAIL: list returned %v", err)
				return false
			}
			reference, _ := q.List(context.Background(), ListParams{SortBy: "created_at", SortOrder: order})

			for i := range reference.Data {
				if unknown.Data[i].ID != reference.Data[i].ID {
					t.Logf("FAIL: row %d differs for sort field %q", i, field)
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestListingQuery_SummaryFields(t *testing.T) {
	repo := newMockProductRepository()
	q := NewListingQuery(repo, newMockImageStore())

	p := &domain.Product{ID: uuid.New(), Name: "Lamp", Description: "Bright", Price: decimal.RequireFromString("19.50")}
	_ = repo.Create(context.Background(), p)

	result, err := q.List(context.Background(), ListParams{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := result.Data[0]
	if got.ID != p.ID || got.Name != "Lamp" || got.Description != "Bright" || !got.Price.Equal(p.Price) {
		t.Errorf("unexpected summary: %+v", got)
	}
}
