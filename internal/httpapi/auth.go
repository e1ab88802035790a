package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/healthguard/surveillance/internal/store/core"
	"github.com/healthguard/surveillance/internal/token"
)

// PayloadFromContext returns the verified access-token payload set by
// RequireAuth.
func PayloadFromContext(ctx context.Context) *token.Payload {
	p, _ := ctx.Value(ctxKeyPayload).(*token.Payload)
	return p
}

// bearer extracts the credential from the Authorization header.
func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireAuth verifies the bearer access token and stores its payload
// in the context. Renewal tokens are not accepted here.
func RequireAuth(tokens *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearer(r)
			if raw == "" {
				WriteDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			p, err := tokens.Verify(raw)
			switch {
			case errors.Is(err, token.ErrExpired):
				WriteDetail(w, http.StatusUnauthorized, "token expired")
				return
			case err != nil:
				WriteDetail(w, http.StatusUnauthorized, "invalid token")
				return
			case p.Kind != token.KindAccess:
				WriteDetail(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPayload, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin allows only the admin role. Runs after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PayloadFromContext(r.Context())
		if p == nil || p.Role != core.RoleAdmin {
			WriteDetail(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAccountScope allows admins, plus clients whose account claim
// matches the {id} route parameter. Runs after RequireAuth.
func RequireAccountScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PayloadFromContext(r.Context())
		if p == nil {
			WriteDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		if p.Role == core.RoleAdmin {
			next.ServeHTTP(w, r)
			return
		}
		id := chi.URLParam(r, "id")
		if p.Role == core.RoleClient && p.AccountID != nil && *p.AccountID == id {
			next.ServeHTTP(w, r)
			return
		}
		WriteDetail(w, http.StatusForbidden, "access to this account is not allowed")
	})
}
