package controllers

import (
	"net/http"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/api/validators"
	"github.com/angelmondragon/partyshop-backend/internal/users"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

func ProfileGet(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "user", svc != nil, func(r *http.Request) (int, any, error) {
		id, err := authenticated(r)
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.GetProfile(r.Context(), id.UserID()))
	})
}

// ProfileUpdate changes name and phone. Email and role are not editable here.
func ProfileUpdate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "user", svc != nil, func(r *http.Request) (int, any, error) {
		id, err := authenticated(r)
		if err != nil {
			return responses.Fail(err)
		}
		var input users.UpdateProfileInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			return responses.Fail(err)
		}
		input.FirstName = sanitizeOptional(input.FirstName, maxNameLen)
		input.LastName = sanitizeOptional(input.LastName, maxNameLen)
		return responses.Result(svc.UpdateProfile(r.Context(), id.UserID(), input))
	})
}

func ProfileDelete(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "user", svc != nil, func(r *http.Request) (int, any, error) {
		id, err := authenticated(r)
		if err != nil {
			return responses.Fail(err)
		}
		if err := svc.DeleteAccount(r.Context(), id.UserID()); err != nil {
			return responses.Fail(err)
		}
		return deleted(id.UserID())
	})
}

func sanitizeOptional(value *string, max int) *string {
	if value == nil {
		return nil
	}
	clean := validators.SanitizeString(*value, max)
	return &clean
}
