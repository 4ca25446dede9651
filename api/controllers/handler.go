package controllers

import (
	"net/http"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
)

func deleted(id any) (int, any, error) {
	return responses.OK(map[string]any{"deleted": true, "id": id})
}

func authenticated(r *http.Request) (identity.Identity, error) {
	id := identity.FromContext(r.Context())
	if !id.IsAuthenticated() {
		return id, pkgerrors.NewReason(pkgerrors.CodeUnauthorized, "AUTH_REQUIRED", "authentication required")
	}
	return id, nil
}
