package middleware

import (
	"net/http"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

// RequireAdmin allows only authenticated administrators. The role comes from the
// access token, so a role change is visible after the next login.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identity.FromContext(r.Context())
			if !id.IsAuthenticated() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.NewReason(pkgerrors.CodeUnauthorized, "AUTH_REQUIRED", "authentication required"))
				return
			}
			if !id.IsAdmin() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.NewReason(pkgerrors.CodeForbidden, "ADMIN_REQUIRED", "admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
