package identity

import (
	"errors"
	"strings"

	"github.com/angelmondragon/partyshop-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
)

// TokenVerifier checks bearer tokens minted by pkg/auth.
type TokenVerifier interface {
	Verify(token string) (*auth.AccessTokenClaims, error)
}

// Resolver turns request credential material into an Identity.
type Resolver struct {
	verifier TokenVerifier
}

func NewResolver(verifier TokenVerifier) (*Resolver, error) {
	if verifier == nil {
		return nil, errors.New("token verifier required")
	}
	return &Resolver{verifier: verifier}, nil
}

// Resolve prefers a bearer token over a guest token. A bearer token that fails
// verification is an error; it never degrades to guest or anonymous.
func (r *Resolver) Resolve(bearer, guestToken string) (Identity, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer != "" {
		claims, err := r.verifier.Verify(bearer)
		if err != nil {
			return Anonymous(), pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid or expired token").
				WithReason(ReasonInvalidCredential)
		}
		return Authenticated(claims.UserID, claims.Role), nil
	}

	guestToken = strings.TrimSpace(guestToken)
	if guestToken == "" {
		return Anonymous(), nil
	}
	if err := ValidateGuestToken(guestToken); err != nil {
		return Anonymous(), err
	}
	return Guest(guestToken), nil
}
