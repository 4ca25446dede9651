package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/api/validators"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/internal/users"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/pagination"
)

const maxPage = 1_000_000

// UsersList is the admin user directory.
func UsersList(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "user", svc != nil, func(r *http.Request) (int, any, error) {
		page, err := validators.ParseQueryInt(r, "page", 1, 1, maxPage)
		if err != nil {
			return responses.Fail(err)
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.List(r.Context(), pagination.Params{Page: page, Limit: limit}))
	})
}

// UsersToggleAdmin flips the target between customer and admin.
func UsersToggleAdmin(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "user", svc != nil, func(r *http.Request) (int, any, error) {
		actor, target, err := actorAndTarget(r)
		if err != nil {
			return responses.Fail(err)
		}
		change, err := svc.ToggleAdmin(r.Context(), actor.UserID(), target)
		if err != nil {
			return responses.Fail(err)
		}
		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"target_user_id": target.String(),
				"promoted":       change.Promoted,
			}), "user role changed")
		}
		return responses.OK(change)
	})
}

func UsersDelete(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "user", svc != nil, func(r *http.Request) (int, any, error) {
		actor, target, err := actorAndTarget(r)
		if err != nil {
			return responses.Fail(err)
		}
		if err := svc.Delete(r.Context(), actor.UserID(), target); err != nil {
			return responses.Fail(err)
		}
		return deleted(target)
	})
}

func actorAndTarget(r *http.Request) (identity.Identity, uuid.UUID, error) {
	actor, err := authenticated(r)
	if err != nil {
		return actor, uuid.Nil, err
	}
	target, err := validators.ParseUUIDParam(r, "userId")
	return actor, target, err
}
