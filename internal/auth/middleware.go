package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
	"github.com/joao-fontenele/gamestore-orderflow/internal/httpx"
)

type identityKey struct{}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(domain.Identity)
	return identity, ok
}

// Authenticate requires a valid bearer token and stores the caller's
// identity in the request context.
func Authenticate(verifier *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httpx.WriteMessage(r.Context(), w, logger, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("rejected token", "error", err, "path", r.URL.Path)
				httpx.WriteMessage(r.Context(), w, logger, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func RequireRole(role domain.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			if !ok {
				httpx.WriteMessage(r.Context(), w, logger, http.StatusUnauthorized, "unauthenticated", "missing identity")
				return
			}
			if identity.Role != role {
				httpx.WriteMessage(r.Context(), w, logger, http.StatusForbidden, "forbidden", "requires role "+string(role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCallbackToken guards provider callbacks with a shared secret. An
// empty token disables the check.
func RequireCallbackToken(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Callback-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httpx.WriteMessage(r.Context(), w, logger, http.StatusUnauthorized, "unauthenticated", "invalid callback token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
