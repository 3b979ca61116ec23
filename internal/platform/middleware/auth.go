package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/platform/httputil"
)

type contextKeyBearerToken struct{}

// GetBearerToken returns the token stored by RequireBearer or OptionalBearer.
func GetBearerToken(ctx context.Context) string {
	token, _ := ctx.Value(contextKeyBearerToken{}).(string)
	return token
}

// WithBearerToken injects a token, mainly for handler tests.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKeyBearerToken{}, token)
}

// ExtractBearer returns the token from an "Authorization: Bearer" header.
func ExtractBearer(r *http.Request) (string, bool) {
	after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}
	token := strings.TrimSpace(after)
	return token, token != ""
}

// RequireBearer rejects requests without a bearer token. The token itself is
// opaque here; the auth service decides whether it is valid.
func RequireBearer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := ExtractBearer(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithBearerToken(ctx, token)))
		})
	}
}

// OptionalBearer stores the token when present and never rejects.
func OptionalBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := ExtractBearer(r); ok {
			r = r.WithContext(WithBearerToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}
