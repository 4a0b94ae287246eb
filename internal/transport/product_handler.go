package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"product-admin/internal/domain"
	"product-admin/internal/middleware"
	"product-admin/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// defaultMultipartMemory is kept in memory per request, the rest spills to temp files
const defaultMultipartMemory = 8 << 20

// ProductLister serves the product table
type ProductLister interface {
	List(ctx context.Context, params service.ListParams) (*service.ListingResult, error)
}

// ImageResponse represents a stored product image
type ImageResponse struct {
	ID        uuid.UUID `json:"id"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	IsPrimary bool      `json:"is_primary"`
	Position  int       `json:"position"`
}

// ProductResponse represents a product with all of its images
type ProductResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"product_name"`
	Price        decimal.Decimal `json:"product_price"`
	Description  string          `json:"product_description"`
	PrimaryImage string          `json:"primary_image"`
	Images       []ImageResponse `json:"images"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProductMutationResponse is returned by create and update
type ProductMutationResponse struct {
	Message string          `json:"message"`
	Product ProductResponse `json:"product"`
}

// ProductHandler handles HTTP requests for product administration
type ProductHandler struct {
	products service.ProductService
	listing  ProductLister
	urls     service.URLResolver
	logger   *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(products service.ProductService, listing ProductLister, urls service.URLResolver, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		listing:  listing,
		urls:     urls,
		logger:   logger,
	}
}

// RegisterRoutes registers all product routes behind protect
func (h *ProductHandler) RegisterRoutes(r chi.Router, protect func(http.Handler) http.Handler) {
	r.Route("/products", func(r chi.Router) {
		r.Use(protect)

		r.Get("/", h.ListProducts)
		r.Get("/listing", h.ListProducts)
		r.Post("/", h.CreateProduct)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetProduct)
			r.Get("/edit", h.GetProduct)
			r.Put("/", h.UpdateProduct)
			r.Delete("/", h.DeleteProduct)
		})
	})
}

// ListProducts handles the paginated product table
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := service.ListParams{
		Page:      queryInt(query.Get("page")),
		PerPage:   queryInt(query.Get("per_page")),
		SortBy:    query.Get("sort_by"),
		SortOrder: query.Get("sort_order"),
		Search:    query.Get("search"),
	}

	result, err := h.listing.List(r.Context(), params)
	if err != nil {
		h.respondWithServiceError(w, err, "list products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, result)
}

// CreateProduct handles product creation from a multipart form
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	input, ok := h.parseProductForm(w, r)
	if !ok {
		return
	}

	product, err := h.products.CreateProduct(r.Context(), input)
	if err != nil {
		h.respondWithServiceError(w, err, "create product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, ProductMutationResponse{
		Message: "Product created successfully",
		Product: h.toProductResponse(product),
	})
}

// GetProduct returns a product with its images, used by show and edit
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	product, err := h.products.GetProduct(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, err, "get product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, h.toProductResponse(product))
}

// UpdateProduct replaces the product fields and its whole image set
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	input, ok := h.parseProductForm(w, r)
	if !ok {
		return
	}

	product, err := h.products.UpdateProduct(r.Context(), id, input)
	if err != nil {
		h.respondWithServiceError(w, err, "update product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ProductMutationResponse{
		Message: "Product updated successfully",
		Product: h.toProductResponse(product),
	})
}

// DeleteProduct removes a product, its images and their blobs
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	if err := h.products.DeleteProduct(r.Context(), id); err != nil {
		h.respondWithServiceError(w, err, "delete product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Product deleted successfully"})
}

// productID parses the {id} URL parameter. Malformed ids cannot match a
// product and are answered with 404.
func (h *ProductHandler) productID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
		return uuid.Nil, false
	}
	return id, true
}

// parseProductForm reads the form fields and uploaded files. Field names
// used by the admin front-end are accepted next to the short names.
func (h *ProductHandler) parseProductForm(w http.ResponseWriter, r *http.Request) (service.ProductInput, bool) {
	var input service.ProductInput

	err := r.ParseMultipartForm(defaultMultipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		if middleware.IsRequestTooLarge(err) {
			middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return input, false
		}
		h.logger.Debug("Failed to parse product form", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return input, false
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	input.Name = formValue(r, "name", "product_name")
	input.Price = formValue(r, "price", "product_price")
	input.Description = formValue(r, "description", "product_description")
	input.PrimaryIndex = formValue(r, "primary_image_index", "primaryImageIndex")

	uploads, err := readUploads(r.MultipartForm)
	if err != nil {
		if middleware.IsRequestTooLarge(err) {
			middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return input, false
		}
		h.logger.Error("Failed to read uploaded files", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return input, false
	}
	input.Images = uploads

	return input, true
}

// respondWithServiceError maps service failures to HTTP responses.
// Storage and persistence details never reach the client.
func (h *ProductHandler) respondWithServiceError(w http.ResponseWriter, err error, action string) {
	var validationErr *domain.ValidationError

	switch {
	case errors.As(err, &validationErr):
		h.logger.Debug("Product validation failed", zap.String("action", action), zap.Error(err))
		middleware.RespondWithValidationErrors(w, validationErr.Fields)
	case errors.Is(err, domain.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	default:
		h.logger.Error("Product operation failed", zap.String("action", action), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "operation failed")
	}
}

func (h *ProductHandler) toProductResponse(p *domain.Product) ProductResponse {
	resp := ProductResponse{
		ID:           p.ID,
		Name:         p.Name,
		Price:        p.Price,
		Description:  p.Description,
		PrimaryImage: service.PlaceholderImageURL,
		Images:       make([]ImageResponse, 0, len(p.Images)),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}

	if primary := p.PrimaryImage(); primary != nil {
		resp.PrimaryImage = h.urls.URL(primary.Path)
	}

	for _, img := range p.Images {
		resp.Images = append(resp.Images, ImageResponse{
			ID:        img.ID,
			Path:      img.Path,
			URL:       h.urls.URL(img.Path),
			IsPrimary: img.IsPrimary,
			Position:  img.Position,
		})
	}

	return resp
}

func formValue(r *http.Request, keys ...string) string {
	for _, key := range keys {
		if values, ok := r.Form[key]; ok && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

func queryInt(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

func readUploads(form *multipart.Form) ([]service.Upload, error) {
	if form == nil {
		return nil, nil
	}

	headers := form.File["images[]"]
	if len(headers) == 0 {
		headers = form.File["images"]
	}

	uploads := make([]service.Upload, 0, len(headers))
	for i, header := range headers {
		data, err := readUpload(header)
		if err != nil {
			return nil, fmt.Errorf("failed to read image %d: %w", i, err)
		}
		uploads = append(uploads, service.Upload{Filename: header.Filename, Data: data})
	}

	return uploads, nil
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}
