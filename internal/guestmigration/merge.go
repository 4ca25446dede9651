package guestmigration

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/internal/cart"
	"github.com/angelmondragon/partyshop-backend/internal/favorites"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
)

// mergeCart re-keys the guest cart when the user has none, otherwise sums
// colliding quantities, unions participants in order and deletes the guest cart.
func mergeCart(ctx context.Context, repo *cart.Repository, guest, user identity.Owner) (Mode, error) {
	guestCart, err := repo.FindByOwner(ctx, guest)
	if err != nil {
		if db.IsNotFound(err) {
			return ModeNoop, nil
		}
		return ModeNoop, err
	}
	if len(guestCart.Items) == 0 && len(guestCart.Participants) == 0 {
		return ModeNoop, nil
	}
	token, _ := guest.GuestToken()
	userID, _ := user.UserID()

	userCart, err := repo.FindByOwner(ctx, user)
	if err != nil && !db.IsNotFound(err) {
		return ModeNoop, err
	}
	if userCart == nil {
		claimed, err := repo.Rekey(ctx, guestCart.ID, token, userID)
		if err != nil {
			return ModeNoop, err
		}
		if !claimed {
			return ModeNoop, errAlreadyClaimed
		}
		return ModeRekeyed, nil
	}

	for _, item := range guestCart.Items {
		found, err := repo.IncrementItem(ctx, userCart.ID, item.ProductID, item.Quantity)
		if err != nil {
			return ModeNoop, err
		}
		if found {
			continue
		}
		line := item
		line.ID = uuid.Nil
		line.CartID = userCart.ID
		if err := repo.CreateItem(ctx, &line); err != nil {
			return ModeNoop, err
		}
	}

	seen := make(map[string]struct{}, len(userCart.Participants))
	for _, p := range userCart.Participants {
		seen[p.Name] = struct{}{}
	}
	for _, p := range guestCart.Participants {
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		if err := repo.AppendParticipant(ctx, userCart.ID, p.Name); err != nil {
			return ModeNoop, err
		}
	}

	deleted, err := repo.Delete(ctx, guestCart.ID)
	if err != nil {
		return ModeNoop, err
	}
	if !deleted {
		return ModeNoop, errAlreadyClaimed
	}
	if err := repo.Touch(ctx, userCart.ID); err != nil {
		return ModeNoop, err
	}
	return ModeMerged, nil
}

// mergeFavorites mirrors mergeCart; on collision the earliest addedAt wins.
func mergeFavorites(ctx context.Context, repo *favorites.Repository, guest, user identity.Owner) (Mode, error) {
	guestList, err := repo.FindByOwner(ctx, guest)
	if err != nil {
		if db.IsNotFound(err) {
			return ModeNoop, nil
		}
		return ModeNoop, err
	}
	if len(guestList.Items) == 0 {
		return ModeNoop, nil
	}
	token, _ := guest.GuestToken()
	userID, _ := user.UserID()

	userList, err := repo.FindByOwner(ctx, user)
	if err != nil && !db.IsNotFound(err) {
		return ModeNoop, err
	}
	if userList == nil {
		claimed, err := repo.Rekey(ctx, guestList.ID, token, userID)
		if err != nil {
			return ModeNoop, err
		}
		if !claimed {
			return ModeNoop, errAlreadyClaimed
		}
		return ModeRekeyed, nil
	}

	existing := make(map[uuid.UUID]struct{}, len(userList.Items))
	for _, item := range userList.Items {
		existing[item.ProductID] = struct{}{}
	}
	for _, item := range guestList.Items {
		if _, ok := existing[item.ProductID]; ok {
			if err := repo.KeepEarliest(ctx, userList.ID, item.ProductID, item.AddedAt); err != nil {
				return ModeNoop, err
			}
			continue
		}
		line := item
		line.ID = uuid.Nil
		line.ListID = userList.ID
		if err := repo.CreateItem(ctx, &line); err != nil {
			return ModeNoop, err
		}
	}

	deleted, err := repo.Delete(ctx, guestList.ID)
	if err != nil {
		return ModeNoop, err
	}
	if !deleted {
		return ModeNoop, errAlreadyClaimed
	}
	if err := repo.Touch(ctx, userList.ID); err != nil {
		return ModeNoop, err
	}
	return ModeMerged, nil
}
