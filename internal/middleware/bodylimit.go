package middleware

import (
	"errors"
	"net/http"
)

// MaxRequestBody caps the size of request bodies. Reading past the limit
// fails with *http.MaxBytesError, see IsRequestTooLarge.
func MaxRequestBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsRequestTooLarge reports whether err was caused by MaxRequestBody
func IsRequestTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
