package controllers

import (
	"net/http"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/api/validators"
	"github.com/angelmondragon/partyshop-backend/internal/auth"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const maxNameLen = 80

// AuthRegister opens a customer account and signs the caller in.
func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "auth", svc != nil, func(r *http.Request) (int, any, error) {
		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return responses.Fail(err)
		}
		body.FirstName = validators.SanitizeString(body.FirstName, maxNameLen)
		body.LastName = validators.SanitizeString(body.LastName, maxNameLen)

		session, err := svc.Register(r.Context(), body)
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Created(session)
	})
}

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "auth", svc != nil, func(r *http.Request) (int, any, error) {
		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.Login(r.Context(), body))
	})
}

// AuthGuest hands out a fresh guest token for anonymous carts and favorites.
func AuthGuest(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "auth", svc != nil, func(r *http.Request) (int, any, error) {
		token, err := svc.IssueGuestToken(r.Context())
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Created(token)
	})
}
