package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSHandler returns a configured CORS handler for Chi
func CORSHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Request-ID", "X-Payment"},
		ExposedHeaders:   []string{"Link", "X-Total-Count", "X-Payment-Amount", "X-Payment-Network", "X-Payment-Address"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	})
}
