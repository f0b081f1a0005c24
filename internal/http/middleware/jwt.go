package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/porteria/visitor-access/internal/domain"
	"github.com/porteria/visitor-access/internal/http/response"
	"github.com/porteria/visitor-access/pkg/auth"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

func RequireJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "invalid authorization header")
				return
			}
			claims, err := auth.Parse(strings.TrimPrefix(authz, "Bearer "), secret)
			if err != nil {
				response.Unauthorized(w, "invalid authorization token")
				return
			}
			ctx := context.WithValue(r.Context(), CtxClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := Claims(r)
		if claims == nil || claims.Role != auth.RoleAdmin {
			response.WriteError(w, http.StatusForbidden, "administrator role required", domain.CodeForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func Claims(r *http.Request) *auth.Claims {
	v := r.Context().Value(CtxClaims)
	if v == nil {
		return nil
	}
	return v.(*auth.Claims)
}

// ActorFrom builds the domain principal from verified claims. Handlers
// behind RequireJWT can assume claims are present.
func ActorFrom(r *http.Request) domain.Actor {
	claims := Claims(r)
	if claims == nil {
		return domain.Actor{}
	}
	return domain.Actor{ID: claims.Sub, Role: claims.Role, CompanyID: claims.CompanyID}
}
