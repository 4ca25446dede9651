package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
)

const (
	ReasonOwnerRequired     = "OWNER_REQUIRED"
	ReasonInvalidGuestToken = "INVALID_GUEST_TOKEN"
	ReasonInvalidCredential = "INVALID_CREDENTIAL"
)

var guestTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

type ownerKind uint8

const (
	ownerNone ownerKind = iota
	ownerUser
	ownerGuest
)

// Owner keys a cart or favorites list. It is either a registered user or a
// guest token, never both. The zero value is invalid.
type Owner struct {
	kind       ownerKind
	userID     uuid.UUID
	guestToken string
}

// ForUser builds an owner for a registered user. A nil id yields the invalid owner.
func ForUser(id uuid.UUID) Owner {
	if id == uuid.Nil {
		return Owner{}
	}
	return Owner{kind: ownerUser, userID: id}
}

// ForGuest builds an owner for a guest token. Blank tokens yield the invalid owner.
func ForGuest(token string) Owner {
	token = strings.TrimSpace(token)
	if token == "" {
		return Owner{}
	}
	return Owner{kind: ownerGuest, guestToken: token}
}

func (o Owner) Valid() bool   { return o.kind != ownerNone }
func (o Owner) IsUser() bool  { return o.kind == ownerUser }
func (o Owner) IsGuest() bool { return o.kind == ownerGuest }

// UserID returns the user id when the owner is a registered user.
func (o Owner) UserID() (uuid.UUID, bool) {
	return o.userID, o.kind == ownerUser
}

// GuestToken returns the token when the owner is a guest.
func (o Owner) GuestToken() (string, bool) {
	return o.guestToken, o.kind == ownerGuest
}

// Column returns the storage column and value that select this owner's rows.
func (o Owner) Column() (string, any) {
	switch o.kind {
	case ownerUser:
		return "user_id", o.userID
	case ownerGuest:
		return "guest_token", o.guestToken
	}
	return "", nil
}

// Key is a stable identifier usable as a lock or cache key.
func (o Owner) Key() string {
	switch o.kind {
	case ownerUser:
		return "user:" + o.userID.String()
	case ownerGuest:
		return "guest:" + o.guestToken
	}
	return ""
}

// String masks guest tokens so owners can be logged.
func (o Owner) String() string {
	switch o.kind {
	case ownerUser:
		return "user:" + o.userID.String()
	case ownerGuest:
		if len(o.guestToken) <= 4 {
			return "guest:****"
		}
		return "guest:" + o.guestToken[:4] + "****"
	}
	return "anonymous"
}

// ValidateGuestToken checks the opaque guest token format.
func ValidateGuestToken(token string) error {
	if !guestTokenPattern.MatchString(token) {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonInvalidGuestToken,
			"guest token must be 8-128 characters of letters, digits, '-' or '_'")
	}
	return nil
}

// NewGuestToken returns a fresh server-issued guest token.
func NewGuestToken() string {
	return "guest_" + uuid.NewString()
}
