package ownercontext

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/partyshop-backend/api/middleware"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
)

// Resolve returns the owner for cart and favorites requests. The identity from
// the middleware wins; a body guestToken is only used when the request carried
// no credential at all.
func Resolve(r *http.Request, bodyGuestToken string) (identity.Owner, error) {
	id := identity.FromContext(r.Context())
	if id.IsAnonymous() {
		if token := strings.TrimSpace(bodyGuestToken); token != "" {
			if err := identity.ValidateGuestToken(token); err != nil {
				return identity.Owner{}, err
			}
			return identity.ForGuest(token), nil
		}
	}
	return id.Owner()
}

// GuestToken returns the guest token named by the body, falling back to the
// X-Guest-Token header and guestToken query. Migration endpoints need it even
// when the bearer token decided the identity.
func GuestToken(r *http.Request, bodyGuestToken string) string {
	if token := strings.TrimSpace(bodyGuestToken); token != "" {
		return token
	}
	if token := strings.TrimSpace(r.Header.Get(middleware.GuestTokenHeader)); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get(middleware.GuestTokenQuery))
}
