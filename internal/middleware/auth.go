package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

type contextKey string

const (
	ActorKey     contextKey = "actor"
	RequestIDKey contextKey = "request_id"
)

// Authenticator checks a username and password.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (tenancy.User, error)
}

// BasicAuth resolves the caller from HTTP Basic credentials and stores the
// actor in the request context. Probe and metrics paths stay open.
func BasicAuth(auth Authenticator, realm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOpenPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			username, password, ok := r.BasicAuth()
			if !ok || username == "" {
				unauthorized(w, realm, "missing credentials")
				return
			}

			user, err := auth.Authenticate(r.Context(), username, password)
			if err != nil {
				if errors.Is(err, custody.ErrPermissionDenied) {
					unauthorized(w, realm, "invalid credentials")
					return
				}
				http.Error(w, "authentication unavailable", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), ActorKey, user.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, realm, msg string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
	http.Error(w, msg, http.StatusUnauthorized)
}

func isOpenPath(p string) bool {
	switch p {
	case "/health", "/ready", "/live", "/metrics":
		return true
	}
	return false
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (tenancy.Actor, bool) {
	a, ok := ctx.Value(ActorKey).(tenancy.Actor)
	return a, ok
}
