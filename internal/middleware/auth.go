package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/haggle/haggle-api/internal/pkg/jwt"
	"github.com/haggle/haggle-api/internal/pkg/response"
)

type contextKey string

const (
	IdentityKey contextKey = "identity"
	DomainKey   contextKey = "domain"
)

// Auth returns middleware that validates the identity token and rejects
// requests without an identity before any ledger or pricing access.
func Auth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwtService.ValidateToken(parts[1])
			if err != nil {
				if err == jwt.ErrExpiredToken {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, claims.WalletAddress)
			ctx = context.WithValue(ctx, DomainKey, claims.Domain)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity extracts the wallet address from context
func GetIdentity(ctx context.Context) string {
	if id, ok := ctx.Value(IdentityKey).(string); ok {
		return id
	}
	return ""
}

// GetDomain extracts the verified domain from context
func GetDomain(ctx context.Context) string {
	if d, ok := ctx.Value(DomainKey).(string); ok {
		return d
	}
	return ""
}
