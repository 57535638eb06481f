package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hartwellgoods/storefront-backend/pkg/logger"
)

const cartSessionHeader = "X-Cart-Session"

type contextKey string

const ctxCartSession contextKey = "cart_session"

// CartSessionFromContext returns the session token for the current request.
func CartSessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCartSession).(string); ok {
		return v
	}
	return ""
}

// WithCartSession injects the session token into the context.
func WithCartSession(ctx context.Context, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCartSession, token)
}

// CartSession resolves the anonymous cart session token. A request without one
// gets a fresh token minted; either way the token is echoed on the response so
// the client can persist it.
func CartSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(cartSessionHeader))
			if token == "" {
				token = uuid.NewString()
			}

			w.Header().Set(cartSessionHeader, token)

			ctx := WithCartSession(r.Context(), token)
			if logg != nil {
				ctx = logg.WithCartSession(ctx, token)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
