package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/pkg/enums"
)

var ErrIncompleteClaims = errors.New("token claims incomplete")

// AccessTokenPayload is what the auth service knows when it issues a token.
// An empty JTI gets a random one.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	JTI    string
}

type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate is called by the jwt parser after the registered claims pass.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil || !c.Role.IsValid() {
		return ErrIncompleteClaims
	}
	if c.Subject != "" && c.Subject != c.UserID.String() {
		return errors.New("token subject does not match user id")
	}
	return nil
}

func (c *AccessTokenClaims) IsAdmin() bool {
	return c != nil && c.Role == enums.UserRoleAdmin
}
