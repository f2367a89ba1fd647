package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"go-marketplace/internal/signing"
)

// CORS allows credentials so the browser sends the session cookie.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Authorization", "Content-Type", "X-Request-ID",
			signing.HeaderSignature, signing.HeaderTimestamp,
		},
		ExposedHeaders: []string{
			"X-Request-ID", "Retry-After",
			headerRateLimitRemaining, headerRateLimitReset,
		},
		MaxAge:           3600,
		AllowCredentials: true,
	})

	return handler.Handler
}
