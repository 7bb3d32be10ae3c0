package middleware

import (
	"net/http"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/http/response"
	"github.com/sandeepkv93/crudguard/internal/observability"
	"github.com/sandeepkv93/crudguard/internal/service"
)

// RequireCommand lets the request through only when the resolved role may
// run command. It must be mounted after AuthGuard.
func RequireCommand(authz *service.Authorizer, command string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, ok := RequestContextFrom(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, service.CodeUnauthorized, "missing request context", nil)
				return
			}
			if err := authz.AuthorizeCommand(r.Context(), rc, command); err != nil {
				observability.RecordGuardDecision(r.Context(), "forbidden", command)
				response.FromError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireFields(authz *service.Authorizer, access domain.FieldAccess, fields ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, ok := RequestContextFrom(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, service.CodeUnauthorized, "missing request context", nil)
				return
			}
			if err := authz.AuthorizeFields(r.Context(), rc, access, fields); err != nil {
				observability.RecordGuardDecision(r.Context(), "forbidden", string(access))
				response.FromError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
