package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const (
	GuestTokenHeader = "X-Guest-Token"
	GuestTokenQuery  = "guestToken"
)

type identityResolver interface {
	Resolve(bearer, guestToken string) (identity.Identity, error)
}

// Identity resolves the caller from the bearer token or guest token and stores
// the result on the request context. Anonymous callers pass through; handlers
// that need an owner reject them.
func Identity(resolver identityResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			bearer, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			id, err := resolver.Resolve(bearer, guestTokenFromRequest(r))
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = identity.WithContext(ctx, id)
			if logg != nil {
				switch {
				case id.IsAuthenticated():
					ctx = logg.WithUserID(ctx, id.UserID().String())
					ctx = logg.WithActorRole(ctx, string(id.Role()))
				case id.IsGuest():
					ctx = logg.WithGuest(ctx, id.GuestToken())
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects guests and anonymous callers.
func RequireAuth(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !identity.FromContext(r.Context()).IsAuthenticated() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.NewReason(pkgerrors.CodeUnauthorized, "AUTH_REQUIRED", "authentication required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", pkgerrors.NewReason(pkgerrors.CodeUnauthorized, identity.ReasonInvalidCredential, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func guestTokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(GuestTokenHeader)); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get(GuestTokenQuery))
}
