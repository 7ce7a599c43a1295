package httpapi

import (
	"context"
	"net/http"
	"strings"

	"sigauth.org/internal/audit"
	"sigauth.org/internal/directory"
)

const (
	authHeader    = "Authorization"
	bearer        = "Bearer "
	sessionCookie = "sid"
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

// principal is the authenticated caller of a request.
type principal struct {
	Account   directory.Account
	Grants    []directory.PermissionInstance
	SessionID string
}

type principalKey struct{}

func contextWithPrincipal(ctx context.Context, p principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}

// withAuth authenticates every non-public request from the session cookie or
// a bearer API token and stores the principal in the context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		p, err := a.authenticate(r)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		ctx := contextWithPrincipal(r.Context(), p)
		ctx = audit.WithAccount(ctx, p.Account.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) authenticate(r *http.Request) (principal, error) {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		account, grants, err := a.sessions.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			return principal{}, err
		}
		return principal{Account: *account, Grants: grants, SessionID: cookie.Value}, nil
	}

	header := strings.TrimSpace(r.Header.Get(authHeader))
	if strings.HasPrefix(header, bearer) {
		token := strings.TrimSpace(header[len(bearer):])
		account, grants, err := a.sessions.AuthenticateAPIToken(r.Context(), token)
		if err != nil {
			return principal{}, err
		}
		return principal{Account: *account, Grants: grants}, nil
	}

	return principal{}, directory.ErrUnauthorized
}

// requireRoot gates the administrative routes on the root grant. It writes
// the error response itself and reports whether the handler may proceed.
func (a *API) requireRoot(w http.ResponseWriter, r *http.Request) (principal, bool) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return principal{}, false
	}
	if !a.dir.Bootstrap().IsRoot(p.Grants) {
		writeError(w, r, http.StatusUnauthorized, "root permission required")
		return principal{}, false
	}
	return p, true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
