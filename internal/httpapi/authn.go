package httpapi

import (
	"context"
	"net/http"

	"tessera.dev/internal/identity"
)

const authHeader = "Authorization"

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/",
}

// withAuth resolves the current principal once per request and attaches
// it to the context. Requests without a token pass through as anonymous;
// handlers that need a principal enforce it via requireCapability.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := a.auth.ResolveCurrentPrincipal(r.Context(), r.Header.Get(authHeader))
		if err != nil {
			// Invalid and missing tokens look identical from outside.
			respondFromError(w, err)
			return
		}
		ctx := r.Context()
		if principal != nil {
			ctx = identity.ContextWithPrincipal(ctx, principal)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireCapability admits the caller when they hold any one of the named
// capabilities. Absent principal maps to ErrUnauthorized, insufficient
// capability to ErrForbidden.
func requireCapability(ctx context.Context, capabilities ...string) (*identity.AuthUser, error) {
	principal, _ := identity.PrincipalFromContext(ctx)
	if !identity.IsAuthorized(ctx, principal, capabilities) {
		if principal == nil {
			return nil, identity.ErrUnauthorized
		}
		return nil, identity.ErrForbidden
	}
	return principal, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
