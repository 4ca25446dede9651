package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/api/validators"
	productsvc "github.com/angelmondragon/partyshop-backend/internal/products"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const maxSearchLen = 100

type createProductRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"required,max=2000"`
	Price       decimal.Decimal `json:"price"`
	Capacity    string          `json:"capacity" validate:"required,max=100"`
	Image       string          `json:"image" validate:"omitempty,max=2048"`
	Category    string          `json:"category" validate:"required,max=100"`
	Available   *bool           `json:"available"`
	Stock       int             `json:"stock" validate:"gte=0"`
}

type updateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price"`
	Capacity    *string          `json:"capacity" validate:"omitempty,max=100"`
	Image       *string          `json:"image" validate:"omitempty,max=2048"`
	Category    *string          `json:"category" validate:"omitempty,max=100"`
	Available   *bool            `json:"available"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0"`
}

func (p createProductRequest) input() productsvc.CreateInput {
	return productsvc.CreateInput{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Capacity:    p.Capacity,
		Image:       p.Image,
		Category:    p.Category,
		Available:   p.Available,
		Stock:       p.Stock,
	}
}

func (p updateProductRequest) input() productsvc.UpdateInput {
	return productsvc.UpdateInput{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Capacity:    p.Capacity,
		Image:       p.Image,
		Category:    p.Category,
		Available:   p.Available,
		Stock:       p.Stock,
	}
}

// ProductList serves the public catalog filtered by category, availability and search text.
func ProductList(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "product", svc != nil, func(r *http.Request) (int, any, error) {
		available, err := validators.ParseQueryBool(r, "available")
		if err != nil {
			return responses.Fail(err)
		}
		query := r.URL.Query()
		return responses.Result(svc.List(r.Context(), productsvc.ListFilter{
			Category:  strings.TrimSpace(query.Get("category")),
			Available: available,
			Search:    validators.SanitizeString(query.Get("search"), maxSearchLen),
		}))
	})
}

func ProductCategories(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "product", svc != nil, func(r *http.Request) (int, any, error) {
		return responses.Result(svc.Categories(r.Context()))
	})
}

func ProductGet(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "product", svc != nil, func(r *http.Request) (int, any, error) {
		id, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.Get(r.Context(), id))
	})
}

func ProductCreate(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "product", svc != nil, func(r *http.Request) (int, any, error) {
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return responses.Fail(err)
		}
		product, err := svc.Create(r.Context(), payload.input())
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Created(product)
	})
}

// ProductUpdate applies a partial update; omitted fields keep their value.
func ProductUpdate(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "product", svc != nil, func(r *http.Request) (int, any, error) {
		id, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			return responses.Fail(err)
		}
		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.Update(r.Context(), id, payload.input()))
	})
}

func ProductDelete(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "product", svc != nil, func(r *http.Request) (int, any, error) {
		id, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			return responses.Fail(err)
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			return responses.Fail(err)
		}
		return deleted(id)
	})
}
