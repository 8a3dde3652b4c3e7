package middleware

import (
	"context"
	"net/http"

	"codecollab/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const userKey contextKey = "user"

// IdentityMiddleware attaches the caller's identity to the request context.
// Credential issuance lives in the auth gateway in front of this service; it
// forwards the authenticated user in X-User-ID / X-User-Name. Browsers cannot
// set headers on a WebSocket handshake, so user_id / user_name query
// parameters are accepted as well.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := models.UserInfo{
			ID:   r.Header.Get("X-User-ID"),
			Name: r.Header.Get("X-User-Name"),
		}
		if user.ID == "" {
			user.ID = r.URL.Query().Get("user_id")
		}
		if user.Name == "" {
			user.Name = r.URL.Query().Get("user_name")
		}
		if user.ID != "" && user.Name == "" {
			user.Name = user.ID
		}

		if user.ID != "" {
			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("user.id", user.ID))
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without an identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user models.UserInfo) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the identity set by IdentityMiddleware.
func UserFromContext(ctx context.Context) (models.UserInfo, bool) {
	user, ok := ctx.Value(userKey).(models.UserInfo)
	return user, ok
}
