package responses

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
)

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestHandle(t *testing.T) {
	cases := map[string]struct {
		fn       Endpoint
		wantCode int
		wantBody string
	}{
		"zero status is ok": {
			fn:       func(*http.Request) (int, any, error) { return 0, "hi", nil },
			wantCode: http.StatusOK,
			wantBody: `{"data":"hi"}`,
		},
		"created": {
			fn:       func(*http.Request) (int, any, error) { return Created(map[string]int{"id": 7}) },
			wantCode: http.StatusCreated,
			wantBody: `{"data":{"id":7}}`,
		},
		"result passes body": {
			fn:       func(*http.Request) (int, any, error) { return Result([]int{1, 2}, nil) },
			wantCode: http.StatusOK,
			wantBody: `{"data":[1,2]}`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := serve(Handle(nil, "demo", true, tc.fn))
			assert.Equal(t, tc.wantCode, w.Code)
			assert.JSONEq(t, tc.wantBody, w.Body.String())
		})
	}
}

func TestHandleErrors(t *testing.T) {
	w := serve(Handle(nil, "demo", true, func(*http.Request) (int, any, error) {
		return Result(0, pkgerrors.New(pkgerrors.CodeNotFound, "no such thing"))
	}))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no such thing", decodeError(t, w).Message)

	w = serve(Handle(nil, "demo", true, func(*http.Request) (int, any, error) {
		return Fail(errors.New("boom"))
	}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleNotReady(t *testing.T) {
	called := false
	w := serve(Handle(nil, "demo", false, func(*http.Request) (int, any, error) {
		called = true
		return OK(nil)
	}))
	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(pkgerrors.CodeInternal), decodeError(t, w).Code)
}
