package favorites

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/api/controllers/ownercontext"
	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/api/validators"
	favoritessvc "github.com/angelmondragon/partyshop-backend/internal/favorites"
	"github.com/angelmondragon/partyshop-backend/internal/guestmigration"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

// OwnerRequest carries the optional body guestToken.
type OwnerRequest struct {
	GuestToken string `json:"guestToken" validate:"omitempty,max=128"`
}

type ProductRequest struct {
	OwnerRequest
	ProductID uuid.UUID `json:"productId" validate:"required"`
}

type itemOp func(ctx context.Context, owner identity.Owner, productID uuid.UUID) (*favoritessvc.View, error)

func FavoritesGet(svc favoritessvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "favorites", svc != nil, func(r *http.Request) (int, any, error) {
		owner, err := ownercontext.Resolve(r, "")
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.Get(r.Context(), owner))
	})
}

// FavoritesCheck reports whether a product is favorited. A caller without any
// credential simply gets false.
func FavoritesCheck(svc favoritessvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "favorites", svc != nil, func(r *http.Request) (int, any, error) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			return responses.Fail(err)
		}
		if identity.FromContext(r.Context()).IsAnonymous() {
			return responses.OK(favoritessvc.CheckResult{})
		}
		owner, err := ownercontext.Resolve(r, "")
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.Check(r.Context(), owner, productID))
	})
}

func FavoritesAdd(svc favoritessvc.Service, logg *logger.Logger) http.HandlerFunc {
	return itemMutation(svc, logg, func(s favoritessvc.Service) itemOp { return s.AddItem })
}

func FavoritesRemove(svc favoritessvc.Service, logg *logger.Logger) http.HandlerFunc {
	return itemMutation(svc, logg, func(s favoritessvc.Service) itemOp { return s.RemoveItem })
}

func itemMutation(svc favoritessvc.Service, logg *logger.Logger, pick func(favoritessvc.Service) itemOp) http.HandlerFunc {
	return responses.Handle(logg, "favorites", svc != nil, func(r *http.Request) (int, any, error) {
		var body ProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return responses.Fail(err)
		}
		owner, err := ownercontext.Resolve(r, body.GuestToken)
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(pick(svc)(r.Context(), owner, body.ProductID))
	})
}

func FavoritesClear(svc favoritessvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "favorites", svc != nil, func(r *http.Request) (int, any, error) {
		var body OwnerRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			return responses.Fail(err)
		}
		owner, err := ownercontext.Resolve(r, body.GuestToken)
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.Clear(r.Context(), owner))
	})
}

// FavoritesMigrate merges a guest favorites list into the authenticated user's list.
func FavoritesMigrate(svc guestmigration.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "migration", svc != nil, func(r *http.Request) (int, any, error) {
		var body OwnerRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			return responses.Fail(err)
		}
		caller := identity.FromContext(r.Context())
		return responses.Result(svc.MigrateFavorites(r.Context(), caller, ownercontext.GuestToken(r, body.GuestToken)))
	})
}
