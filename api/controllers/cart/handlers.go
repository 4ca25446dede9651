package cart

import (
	"context"
	"net/http"

	cartdto "github.com/angelmondragon/partyshop-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/partyshop-backend/api/controllers/ownercontext"
	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/api/validators"
	cartsvc "github.com/angelmondragon/partyshop-backend/internal/cart"
	"github.com/angelmondragon/partyshop-backend/internal/guestmigration"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const defaultAddQuantity = 1

// guestBody is implemented by request bodies that may name a guest token.
type guestBody interface {
	Guest() string
}

// decodeOwned decodes body and resolves the cart owner it refers to.
func decodeOwned(r *http.Request, body guestBody, optional bool) (identity.Owner, error) {
	decode := validators.DecodeJSONBody
	if optional {
		decode = validators.DecodeOptionalJSONBody
	}
	if err := decode(r, body); err != nil {
		return identity.Owner{}, err
	}
	return ownercontext.Resolve(r, body.Guest())
}

func participants(names []string) cartdto.ParticipantsResponse {
	return cartdto.ParticipantsResponse{Participants: names, Count: len(names)}
}

// CartGet returns the caller's cart, or the empty shape when none exists.
func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "cart", svc != nil, func(r *http.Request) (int, any, error) {
		owner, err := ownercontext.Resolve(r, "")
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.Get(r.Context(), owner))
	})
}

// CartAdd adds a product, creating the cart on first use.
func CartAdd(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "cart", svc != nil, func(r *http.Request) (int, any, error) {
		var body cartdto.AddItemRequest
		owner, err := decodeOwned(r, &body, false)
		if err != nil {
			return responses.Fail(err)
		}
		quantity := defaultAddQuantity
		if body.Quantity != nil {
			quantity = *body.Quantity
		}
		return responses.Result(svc.AddItem(r.Context(), owner, body.ProductID, quantity))
	})
}

func CartRemove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "cart", svc != nil, func(r *http.Request) (int, any, error) {
		var body cartdto.RemoveItemRequest
		owner, err := decodeOwned(r, &body, false)
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.RemoveItem(r.Context(), owner, body.ProductID))
	})
}

func CartUpdateQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "cart", svc != nil, func(r *http.Request) (int, any, error) {
		var body cartdto.UpdateQuantityRequest
		owner, err := decodeOwned(r, &body, false)
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.UpdateQuantity(r.Context(), owner, body.ProductID, body.Quantity))
	})
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "cart", svc != nil, func(r *http.Request) (int, any, error) {
		var body cartdto.OwnerRequest
		owner, err := decodeOwned(r, &body, true)
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.Clear(r.Context(), owner))
	})
}

func ParticipantsList(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "cart", svc != nil, func(r *http.Request) (int, any, error) {
		owner, err := ownercontext.Resolve(r, "")
		if err != nil {
			return responses.Fail(err)
		}
		names, err := svc.ListParticipants(r.Context(), owner)
		if err != nil {
			return responses.Fail(err)
		}
		return responses.OK(participants(names))
	})
}

func ParticipantsAdd(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return participantMutation(svc, logg, func(s cartsvc.Service) participantOp { return s.AddParticipant })
}

func ParticipantsRemove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return participantMutation(svc, logg, func(s cartsvc.Service) participantOp { return s.RemoveParticipant })
}

type participantOp func(ctx context.Context, owner identity.Owner, name string) (*cartsvc.View, error)

func participantMutation(svc cartsvc.Service, logg *logger.Logger, pick func(cartsvc.Service) participantOp) http.HandlerFunc {
	return responses.Handle(logg, "cart", svc != nil, func(r *http.Request) (int, any, error) {
		var body cartdto.ParticipantRequest
		owner, err := decodeOwned(r, &body, false)
		if err != nil {
			return responses.Fail(err)
		}
		view, err := pick(svc)(r.Context(), owner, body.Name)
		if err != nil {
			return responses.Fail(err)
		}
		return responses.OK(participants(view.Participants))
	})
}

// CartMigrate moves a guest cart into the authenticated user's cart.
func CartMigrate(svc guestmigration.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "migration", svc != nil, func(r *http.Request) (int, any, error) {
		var body cartdto.MigrateRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.MigrateCart(r.Context(), identity.FromContext(r.Context()), ownercontext.GuestToken(r, body.GuestToken)))
	})
}
