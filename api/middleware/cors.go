package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS admits browser callers from origins. With no origins configured the
// API is same-origin only and the middleware is a no-op.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		// Retry-After accompanies RATE_LIMIT_EXCEEDED; Content-Disposition names the template download.
		ExposedHeaders:   []string{requestIDHeader, replayedHeader, "Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
