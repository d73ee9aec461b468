package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

type contextKey string

const principalContextKey contextKey = "principal"

// WithPrincipal returns a new context carrying the authenticated caller.
func WithPrincipal(ctx context.Context, p *service.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// CurrentPrincipal extracts the caller from context, if any.
func CurrentPrincipal(r *http.Request) *service.Principal {
	if p, ok := r.Context().Value(principalContextKey).(*service.Principal); ok {
		return p
	}
	return nil
}

// CurrentUser extracts the current user from context, if any.
func CurrentUser(r *http.Request) *domain.User {
	if p := CurrentPrincipal(r); p != nil {
		return p.User
	}
	return nil
}

// AuthMiddleware validates the Bearer token and attaches the caller to the context.
func AuthMiddleware(auth *service.AuthService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid Authorization header"})
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			principal, err := auth.Authenticate(r.Context(), tokenStr)
			if err != nil {
				if !errors.Is(err, service.ErrUnauthenticated) {
					logger.Error("authenticate failed", "err", err)
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
					return
				}
				logger.Debug("rejected token", "err", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequirePermission rejects callers whose token does not grant required.
func RequirePermission(required domain.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !CurrentPrincipal(r).Can(required) {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "missing permission " + required.String()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
