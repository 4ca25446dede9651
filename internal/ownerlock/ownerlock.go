// Package ownerlock serializes read-modify-write sequences per cart or
// favorites owner.
package ownerlock

import (
	"context"
	"errors"

	"github.com/angelmondragon/partyshop-backend/internal/identity"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/redis"
)

const (
	ScopeCart      = "cart"
	ScopeFavorites = "favorites"

	ReasonBusy = "OWNER_BUSY"
)

// Locker is satisfied by redis.Locker and redis.LocalLocker.
type Locker interface {
	WithLock(ctx context.Context, scope, id string, fn func(ctx context.Context) error) error
}

// Run executes fn while holding the owner's lock in scope. A lock that stays
// taken past the wait budget becomes a retryable conflict.
func Run(ctx context.Context, locker Locker, scope string, owner identity.Owner, fn func(ctx context.Context) error) error {
	if !owner.Valid() {
		_, err := identity.Anonymous().Owner()
		return err
	}
	err := locker.WithLock(ctx, scope, owner.Key(), fn)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return pkgerrors.NewReason(pkgerrors.CodeConflict, ReasonBusy, scope+" busy, retry")
	}
	return err
}
