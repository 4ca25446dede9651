package responses

import (
	"net/http"

	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

// Endpoint returns its status and payload instead of writing them. A zero
// status means 200.
type Endpoint func(r *http.Request) (int, any, error)

// Handle adapts an Endpoint to net/http. When ready is false every request
// fails with an internal error naming the missing service.
func Handle(logg *logger.Logger, service string, ready bool, fn Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready {
			WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, service+" service unavailable"))
			return
		}
		status, body, err := fn(r)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}
		if status == 0 {
			status = http.StatusOK
		}
		WriteSuccessStatus(w, status, body)
	}
}

func OK(body any) (int, any, error)      { return http.StatusOK, body, nil }
func Created(body any) (int, any, error) { return http.StatusCreated, body, nil }
func Fail(err error) (int, any, error)   { return 0, nil, err }

// Result passes a service call through as a 200, or its error.
func Result[T any](body T, err error) (int, any, error) {
	if err != nil {
		return Fail(err)
	}
	return OK(body)
}
