package api

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-deposit/pkg/simpledeposit"
)

type contextKey string

const identityKey contextKey = "deposit_identity"

// IdentityFromContext returns the identity attached by the middleware. A
// missing identity yields the zero value, which no authorizer accepts.
func IdentityFromContext(ctx context.Context) simpledeposit.Identity {
	if id, ok := ctx.Value(identityKey).(simpledeposit.Identity); ok {
		return id
	}
	return simpledeposit.Identity{}
}

// WithIdentity attaches an identity to the context. Exposed for tests and
// for callers embedding the handler behind their own auth stack.
func WithIdentity(ctx context.Context, id simpledeposit.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// JWTIdentity builds identities from verified JWT claims. Expects the
// jwtauth.Verifier middleware to have run first. The subject claim becomes
// the user id; an "admin" claim set to true grants the administrator
// override.
func JWTIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		id := simpledeposit.Identity{}
		if sub, ok := claims["sub"].(string); ok {
			id.UserID = sub
		}
		if admin, ok := claims["admin"].(bool); ok {
			id.Administrator = admin
		}
		if id.UserID == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// HeaderIdentity builds identities from X-User-ID and X-Admin headers.
// Development and test convenience only; production deployments should
// mount JWTIdentity behind a verifier instead.
func HeaderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := simpledeposit.Identity{
			UserID:        r.Header.Get("X-User-ID"),
			Administrator: r.Header.Get("X-Admin") == "true",
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
