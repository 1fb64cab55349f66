package middleware

import (
	"net/http"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/dukerupert/cakery/internal/identity"
)

type contextKey string

// CallerVerifier resolves a bearer token into a verified caller.
type CallerVerifier interface {
	Verify(token string) (*domain.Caller, error)
}

var _ CallerVerifier = (*identity.Verifier)(nil)

// WithCaller verifies the bearer token, if any, and attaches the caller to the
// request context. Requests without an Authorization header continue
// anonymously; a header carrying a bad token is rejected with 401.
func WithCaller(verifier CallerVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := identity.BearerToken(header)
			if !ok {
				respondUnauthorized(w, r)
				return
			}

			caller, err := verifier.Verify(token)
			if err != nil {
				respondWithError(w, r, err)
				return
			}

			ctx := domain.NewContextWithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCaller rejects anonymous requests with 401.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetCaller(r).Authenticated() {
			respondUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects anonymous requests with 401 and callers holding none of
// roles with 403.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := GetCaller(r)
			if !caller.Authenticated() {
				respondUnauthorized(w, r)
				return
			}
			for _, role := range roles {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondForbidden(w, r)
		})
	}
}

// GetCaller returns the verified caller of r, or nil for anonymous requests.
func GetCaller(r *http.Request) *domain.Caller {
	return domain.CallerFromContext(r.Context())
}
