package server

import (
	"net/http"
	"strings"

	"github.com/tjfontaine/claim-intake/internal/auth"
	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

// AuthMiddleware validates the bearer token and stores the principal in the
// request context. Requests whose path starts with one of the public
// prefixes pass through without a token.
func AuthMiddleware(authenticator *auth.Authenticator, public ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range public {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			token, err := auth.ExtractBearer(r)
			if err != nil {
				WriteError(w, r, domain.NewAPIError(domain.ErrorTypeAuthentication, "missing bearer token"))
				return
			}

			principal, err := authenticator.Validate(token)
			if err != nil {
				AddError(r.Context(), err)
				WriteError(w, r, domain.NewAPIError(domain.ErrorTypeAuthentication, "invalid token"))
				return
			}

			AddLogField(r.Context(), "subject", principal.Subject)
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole rejects requests whose principal lacks role. Requests without a
// principal pass, so routes stay open when authentication is disabled.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := auth.PrincipalFrom(r.Context())
			if principal != nil && !principal.HasRole(role) {
				WriteError(w, r, domain.NewAPIError(domain.ErrorTypePermission, "requires role "+role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
