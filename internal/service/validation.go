package service

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"product-admin/internal/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DefaultMaxImageBytes is the per-file upload limit (2048 KB)
const DefaultMaxImageBytes = 2048 * 1024

// Prices are stored as DECIMAL(12, 2)
const (
	priceScale     = 2
	priceIntDigits = 10
)

// maxPrice is the first value the price column can no longer hold
var maxPrice = decimal.New(1, priceIntDigits)

// allowedImageTypes are the accepted upload types: jpeg/jpg, png, gif and svg
var allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/svg+xml"}

// productSchema is the declarative form schema for create and update
type productSchema struct {
	Name         string         `form:"name" validate:"required,max=255,plain_text"`
	Price        string         `form:"price" validate:"required,numeric,nonnegative,price_column"`
	Description  string         `form:"description" validate:"plain_text"`
	Images       []uploadSchema `form:"images" validate:"required,min=1"`
	PrimaryIndex string         `form:"primary_image_index" validate:"required,number"`
}

// uploadSchema is evaluated once per uploaded file
type uploadSchema struct {
	ContentType string `form:"type" validate:"image_type"`
	Size        int    `form:"size" validate:"gt=0,max_upload_size"`
}

// validImage is an upload that passed validation
type validImage struct {
	data []byte
	ext  string
}

// validProduct holds normalized input ready to persist
type validProduct struct {
	name         string
	price        decimal.Decimal
	description  string
	images       []validImage
	primaryIndex int
}

type productValidator struct {
	validate *validator.Validate
	maxBytes int
}

func newProductValidator(maxBytes int) *productValidator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}

	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("nonnegative", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && !d.IsNegative()
	})

	v.RegisterValidation("price_column", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.Equal(d.Truncate(priceScale)) && d.LessThan(maxPrice)
	})

	v.RegisterValidation("plain_text", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
	})

	v.RegisterValidation("image_type", func(fl validator.FieldLevel) bool {
		return isAllowedImageType(fl.Field().String())
	})

	v.RegisterValidation("max_upload_size", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() <= int64(maxBytes)
	})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		form := sl.Current().Interface().(productSchema)
		if len(form.Images) == 0 || !isDigits(form.PrimaryIndex) {
			return
		}
		// all digits but too large for an int is out of range as well
		if index, err := strconv.Atoi(form.PrimaryIndex); err != nil || index >= len(form.Images) {
			sl.ReportError(form.PrimaryIndex, "primary_image_index", "PrimaryIndex", "primary_in_range", strconv.Itoa(len(form.Images)))
		}
	}, productSchema{})

	return &productValidator{validate: v, maxBytes: maxBytes}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAllowedImageType(contentType string) bool {
	for _, allowed := range allowedImageTypes {
		if contentType == allowed {
			return true
		}
	}
	return false
}

// Validate checks the whole input before any side effect and returns a
// *domain.ValidationError keyed by form field when it fails.
func (pv *productValidator) Validate(in ProductInput) (*validProduct, error) {
	verr := domain.NewValidationError()

	form := productSchema{
		Name:         strings.TrimSpace(in.Name),
		Price:        strings.TrimSpace(in.Price),
		Description:  in.Description,
		PrimaryIndex: strings.TrimSpace(in.PrimaryIndex),
	}

	images := make([]validImage, 0, len(in.Images))
	for i, upload := range in.Images {
		mtype := mimetype.Detect(upload.Data)
		contentType := mtype.String()
		for _, allowed := range allowedImageTypes {
			if mtype.Is(allowed) {
				contentType = allowed
				break
			}
		}

		schema := uploadSchema{ContentType: contentType, Size: len(upload.Data)}
		form.Images = append(form.Images, schema)

		if err := pv.validate.Struct(schema); err != nil {
			for _, fe := range fieldErrors(err) {
				verr.Add(fmt.Sprintf("images.%d", i), pv.message(fe))
			}
			continue
		}

		images = append(images, validImage{data: upload.Data, ext: extensionFor(contentType, mtype)})
	}

	if err := pv.validate.Struct(form); err != nil {
		for _, fe := range fieldErrors(err) {
			verr.Add(fe.Field(), pv.message(fe))
		}
	}

	if verr.HasErrors() {
		return nil, verr
	}

	price, _ := decimal.NewFromString(form.Price)
	primaryIndex, _ := strconv.Atoi(form.PrimaryIndex)

	return &validProduct{
		name:         form.Name,
		price:        price,
		description:  form.Description,
		images:       images,
		primaryIndex: primaryIndex,
	}, nil
}

func fieldErrors(err error) validator.ValidationErrors {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		return validationErrors
	}
	return nil
}

func extensionFor(contentType string, mtype *mimetype.MIME) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	}
	return mtype.Extension()
}

func (pv *productValidator) message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		if e.Field() == "images" {
			return "At least one image is required"
		}
		return "This field is required"
	case "min":
		if e.Kind() == reflect.Slice {
			return "At least " + e.Param() + " image is required"
		}
		return "Value is too short"
	case "max":
		return "Value may not be greater than " + e.Param() + " characters"
	case "numeric":
		return "Value must be a number"
	case "number":
		return "Value must be a non-negative integer"
	case "price_column":
		return fmt.Sprintf("Value may have at most %d decimal places and must be less than %s", priceScale, maxPrice.String())
	case "plain_text":
		return "Value must be valid UTF-8 text without NUL characters"
	case "nonnegative":
		return "Value must be greater than or equal to 0"
	case "gte":
		return "Value must be greater than or equal to " + e.Param()
	case "gt":
		return "File must not be empty"
	case "image_type":
		return "File must be an image of type: jpeg, png, jpg, gif, svg"
	case "max_upload_size":
		return fmt.Sprintf("File may not be greater than %d kilobytes", pv.maxBytes/1024)
	case "primary_in_range":
		return "Primary image index must be less than " + e.Param()
	default:
		return "Invalid value"
	}
}
