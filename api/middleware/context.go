package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/internal/identity"
)

// UserIDFromContext returns the authenticated user id, or "" for guests and
// anonymous callers.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id := identity.FromContext(ctx)
	if !id.IsAuthenticated() || id.UserID() == uuid.Nil {
		return ""
	}
	return id.UserID().String()
}

// OwnerKeyFromContext returns the owner key of the caller, or "" when the
// request carries no usable credential.
func OwnerKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	owner, err := identity.FromContext(ctx).Owner()
	if err != nil {
		return ""
	}
	return owner.Key()
}
