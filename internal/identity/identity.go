package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
)

type Kind uint8

const (
	KindAnonymous Kind = iota
	KindAuthenticated
	KindGuest
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticated:
		return "authenticated"
	case KindGuest:
		return "guest"
	}
	return "anonymous"
}

// Identity is the resolved caller of a request.
type Identity struct {
	kind       Kind
	userID     uuid.UUID
	role       enums.UserRole
	guestToken string
}

func Authenticated(userID uuid.UUID, role enums.UserRole) Identity {
	if role == "" {
		role = enums.UserRoleCustomer
	}
	return Identity{kind: KindAuthenticated, userID: userID, role: role}
}

func Guest(token string) Identity {
	return Identity{kind: KindGuest, guestToken: strings.TrimSpace(token)}
}

func Anonymous() Identity {
	return Identity{}
}

func (i Identity) Kind() Kind            { return i.kind }
func (i Identity) IsAuthenticated() bool { return i.kind == KindAuthenticated }
func (i Identity) IsGuest() bool         { return i.kind == KindGuest }
func (i Identity) IsAnonymous() bool     { return i.kind == KindAnonymous }
func (i Identity) UserID() uuid.UUID     { return i.userID }
func (i Identity) Role() enums.UserRole  { return i.role }
func (i Identity) GuestToken() string    { return i.guestToken }
func (i Identity) IsAdmin() bool         { return i.kind == KindAuthenticated && i.role == enums.UserRoleAdmin }

// Owner returns the storage key for the identity. Anonymous callers own nothing.
func (i Identity) Owner() (Owner, error) {
	switch i.kind {
	case KindAuthenticated:
		return ForUser(i.userID), nil
	case KindGuest:
		return ForGuest(i.guestToken), nil
	}
	return Owner{}, pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonOwnerRequired,
		"authentication or guest token required")
}

type ctxKey struct{}

// WithContext stores the identity on ctx.
func WithContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored on ctx, or Anonymous.
func FromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Anonymous()
	}
	if id, ok := ctx.Value(ctxKey{}).(Identity); ok {
		return id
	}
	return Anonymous()
}
