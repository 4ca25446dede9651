package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/api/validators"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	internalorders "github.com/angelmondragon/partyshop-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/pagination"
)

const (
	maxNotesLen = 1000
	maxPage     = 1_000_000
)

type createRequest struct {
	Notes       string `json:"notes" validate:"max=1000"`
	OrderNumber string `json:"orderNumber" validate:"omitempty,max=32"`
}

type cancelRequest struct {
	CancelReason string `json:"cancelReason" validate:"max=500"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func caller(r *http.Request) (identity.Identity, error) {
	id := identity.FromContext(r.Context())
	if !id.IsAuthenticated() {
		return id, pkgerrors.NewReason(pkgerrors.CodeUnauthorized, "AUTH_REQUIRED", "authentication required")
	}
	return id, nil
}

// userEndpoint runs only for authenticated callers.
type userEndpoint func(r *http.Request, id identity.Identity) (int, any, error)

// orderEndpoint additionally receives the orderId path parameter.
type orderEndpoint func(r *http.Request, id identity.Identity, orderID uuid.UUID) (int, any, error)

func forUser(svc internalorders.Service, logg *logger.Logger, fn userEndpoint) http.HandlerFunc {
	return responses.Handle(logg, "orders", svc != nil, func(r *http.Request) (int, any, error) {
		id, err := caller(r)
		if err != nil {
			return responses.Fail(err)
		}
		return fn(r, id)
	})
}

func forOrder(svc internalorders.Service, logg *logger.Logger, fn orderEndpoint) http.HandlerFunc {
	return forUser(svc, logg, func(r *http.Request, id identity.Identity) (int, any, error) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			return responses.Fail(err)
		}
		return fn(r, id, orderID)
	})
}

// Create places an order from the caller's cart.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return forUser(svc, logg, func(r *http.Request, id identity.Identity) (int, any, error) {
		var body createRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			return responses.Fail(err)
		}
		order, err := svc.Create(r.Context(), id.UserID(), internalorders.CreateOrderInput{
			Notes:       validators.SanitizeString(body.Notes, maxNotesLen),
			OrderNumber: strings.TrimSpace(body.OrderNumber),
		})
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Created(order)
	})
}

// List pages through the caller's orders. Administrators see every order when
// they pass admin=true.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return forUser(svc, logg, func(r *http.Request, id identity.Identity) (int, any, error) {
		page, err := validators.ParseQueryInt(r, "page", 1, 1, maxPage)
		if err != nil {
			return responses.Fail(err)
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			return responses.Fail(err)
		}
		scopeAll, err := validators.ParseQueryBool(r, "admin")
		if err != nil {
			return responses.Fail(err)
		}
		all := scopeAll != nil && *scopeAll && id.IsAdmin()
		return responses.Result(svc.List(r.Context(), id.UserID(), all, internalorders.ListParams{
			Status: r.URL.Query().Get("status"),
			Page:   page,
			Limit:  limit,
		}))
	})
}

func Get(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return forOrder(svc, logg, func(r *http.Request, id identity.Identity, orderID uuid.UUID) (int, any, error) {
		return responses.Result(svc.Get(r.Context(), orderID, id.UserID(), id.IsAdmin()))
	})
}

// Cancel lets the owner cancel a pending order.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return forOrder(svc, logg, func(r *http.Request, id identity.Identity, orderID uuid.UUID) (int, any, error) {
		var body cancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.Cancel(r.Context(), orderID, id.UserID(), body.CancelReason))
	})
}

// UpdateStatus is the administrative status transition.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return forOrder(svc, logg, func(r *http.Request, _ identity.Identity, orderID uuid.UUID) (int, any, error) {
		var body statusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.UpdateStatus(r.Context(), orderID, body.Status))
	})
}

func Delete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return forOrder(svc, logg, func(r *http.Request, _ identity.Identity, orderID uuid.UUID) (int, any, error) {
		if err := svc.Delete(r.Context(), orderID); err != nil {
			return responses.Fail(err)
		}
		return responses.OK(map[string]any{"deleted": true, "id": orderID})
	})
}

func Stats(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return forUser(svc, logg, func(r *http.Request, id identity.Identity) (int, any, error) {
		return responses.Result(svc.Stats(r.Context(), id.UserID()))
	})
}

func AdminStats(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "orders", svc != nil, func(r *http.Request) (int, any, error) {
		return responses.Result(svc.AdminStats(r.Context()))
	})
}
