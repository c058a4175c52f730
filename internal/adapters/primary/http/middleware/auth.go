package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/chatforge/realtime-console/internal/auth"
	"github.com/chatforge/realtime-console/internal/infrastructure/logging"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// WidgetClaimsKey is the key used to store widget claims in the request context.
const WidgetClaimsKey contextKey = "widgetClaims"

// JWTMiddleware validates the JWT token from the Authorization header.
func JWTMiddleware(tm *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Authorization header format must be Bearer {token}", http.StatusUnauthorized)
				return
			}

			tokenString := parts[1]
			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			// Add the claims to the context for downstream handlers, and the
			// identity fields for context-aware log records.
			ctx := context.WithValue(r.Context(), WidgetClaimsKey, claims)
			ctx = logging.WithWidgetID(ctx, claims.WidgetID)
			ctx = logging.WithSessionID(ctx, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetWidgetClaims retrieves the validated claims from the request context.
func GetWidgetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(WidgetClaimsKey).(*auth.Claims)
	return claims, ok
}
