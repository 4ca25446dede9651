package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partyshop-backend/api/middleware"
	cartsvc "github.com/angelmondragon/partyshop-backend/internal/cart"
	"github.com/angelmondragon/partyshop-backend/internal/checkout"
	"github.com/angelmondragon/partyshop-backend/internal/guestmigration"
	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
)

type stubCartService struct {
	view      *cartsvc.View
	err       error
	lastOwner identity.Owner
	lastQty   int
	lastName  string
	lastOp    string
}

func (s *stubCartService) record(op string, owner identity.Owner) (*cartsvc.View, error) {
	s.lastOp = op
	s.lastOwner = owner
	if s.err != nil {
		return nil, s.err
	}
	if s.view == nil {
		return &cartsvc.View{Items: []cartsvc.ItemView{}, Participants: []string{}}, nil
	}
	return s.view, nil
}

func (s *stubCartService) Get(_ context.Context, owner identity.Owner) (*cartsvc.View, error) {
	return s.record("get", owner)
}

func (s *stubCartService) AddItem(_ context.Context, owner identity.Owner, _ uuid.UUID, quantity int) (*cartsvc.View, error) {
	s.lastQty = quantity
	return s.record("add", owner)
}

func (s *stubCartService) RemoveItem(_ context.Context, owner identity.Owner, _ uuid.UUID) (*cartsvc.View, error) {
	return s.record("remove", owner)
}

func (s *stubCartService) UpdateQuantity(_ context.Context, owner identity.Owner, _ uuid.UUID, quantity int) (*cartsvc.View, error) {
	s.lastQty = quantity
	return s.record("update", owner)
}

func (s *stubCartService) Clear(_ context.Context, owner identity.Owner) (*cartsvc.View, error) {
	return s.record("clear", owner)
}

func (s *stubCartService) AddParticipant(_ context.Context, owner identity.Owner, name string) (*cartsvc.View, error) {
	s.lastName = name
	return s.record("participant-add", owner)
}

func (s *stubCartService) RemoveParticipant(_ context.Context, owner identity.Owner, name string) (*cartsvc.View, error) {
	s.lastName = name
	return s.record("participant-remove", owner)
}

func (s *stubCartService) ListParticipants(_ context.Context, owner identity.Owner) ([]string, error) {
	view, err := s.record("participants", owner)
	if err != nil {
		return nil, err
	}
	return view.Participants, nil
}

type stubCheckout struct {
	result *checkout.Result
	err    error
	note   checkout.WebhookNotification
}

func (s *stubCheckout) BuildCheckout(context.Context, identity.Owner) (*checkout.Result, error) {
	return s.result, s.err
}

func (s *stubCheckout) AcknowledgeWebhook(_ context.Context, note checkout.WebhookNotification) (checkout.WebhookAck, error) {
	s.note = note
	return checkout.WebhookAck{Received: true}, nil
}

type stubMigration struct {
	caller identity.Identity
	token  string
}

func (s *stubMigration) MigrateCart(_ context.Context, caller identity.Identity, guestToken string) (*guestmigration.CartResult, error) {
	s.caller = caller
	s.token = guestToken
	return &guestmigration.CartResult{Migrated: true, Mode: guestmigration.ModeRekeyed}, nil
}

func (s *stubMigration) MigrateFavorites(context.Context, identity.Identity, string) (*guestmigration.FavoritesResult, error) {
	return nil, nil
}

func newRequest(method, target, body string, id identity.Identity) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(identity.WithContext(req.Context(), id))
}

func decodeErrorCode(t *testing.T, resp *httptest.ResponseRecorder) (string, map[string]any) {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope.Error.Code, envelope.Error.Details
}

func TestCartGetAsGuest(t *testing.T) {
	svc := &stubCartService{}
	resp := httptest.NewRecorder()
	CartGet(svc, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/api/v1/cart", "", identity.Guest("guest_abcdefgh")))

	require.Equal(t, http.StatusOK, resp.Code)
	token, ok := svc.lastOwner.GuestToken()
	assert.True(t, ok)
	assert.Equal(t, "guest_abcdefgh", token)
	assert.Contains(t, resp.Body.String(), `"products":[]`)
}

func TestCartGetAnonymousRequiresOwner(t *testing.T) {
	resp := httptest.NewRecorder()
	CartGet(&stubCartService{}, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/api/v1/cart", "", identity.Anonymous()))

	require.Equal(t, http.StatusBadRequest, resp.Code)
	code, details := decodeErrorCode(t, resp)
	assert.Equal(t, string(pkgerrors.CodeValidation), code)
	assert.Equal(t, identity.ReasonOwnerRequired, details["reason"])
}

func TestCartAddDefaultsQuantityAndUsesBodyGuestToken(t *testing.T) {
	svc := &stubCartService{}
	body := `{"productId":"` + uuid.NewString() + `","guestToken":"guest_from_body"}`
	resp := httptest.NewRecorder()
	CartAdd(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/cart/add", body, identity.Anonymous()))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, svc.lastQty)
	token, _ := svc.lastOwner.GuestToken()
	assert.Equal(t, "guest_from_body", token)
}

func TestCartAddRejectsBadPayload(t *testing.T) {
	svc := &stubCartService{}
	user := identity.Authenticated(uuid.New(), enums.UserRoleCustomer)
	for _, body := range []string{`{"productId":"nope"}`, `{"productId":"` + uuid.NewString() + `","extra":1}`, `{}`} {
		resp := httptest.NewRecorder()
		CartAdd(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/cart/add", body, user))
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
	}
	assert.Empty(t, svc.lastOp)
}

func TestCartUpdateQuantityMapsServiceErrors(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.NewReason(pkgerrors.CodeNotFound, cartsvc.ReasonItemNotFound, "product not found in cart")}
	body := `{"productId":"` + uuid.NewString() + `","quantity":3}`
	resp := httptest.NewRecorder()
	CartUpdateQuantity(svc, nil).ServeHTTP(resp, newRequest(http.MethodPut, "/api/v1/cart/update-quantity", body, identity.Guest("guest_abcdefgh")))

	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, 3, svc.lastQty)
	_, details := decodeErrorCode(t, resp)
	assert.Equal(t, cartsvc.ReasonItemNotFound, details["reason"])
}

func TestCartClearAcceptsEmptyBody(t *testing.T) {
	svc := &stubCartService{}
	resp := httptest.NewRecorder()
	CartClear(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/cart/clear", "", identity.Guest("guest_abcdefgh")))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "clear", svc.lastOp)
}

func TestParticipantsAddReturnsNames(t *testing.T) {
	svc := &stubCartService{view: &cartsvc.View{Participants: []string{"Ana", "Bia"}}}
	resp := httptest.NewRecorder()
	ParticipantsAdd(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/cart/participants/add", `{"name":"Bia"}`, identity.Guest("guest_abcdefgh")))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Bia", svc.lastName)
	var envelope struct {
		Data struct {
			Participants []string `json:"participants"`
			Count        int      `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, []string{"Ana", "Bia"}, envelope.Data.Participants)
	assert.Equal(t, 2, envelope.Data.Count)
}

func TestParticipantsDuplicateIsConflict(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.NewReason(pkgerrors.CodeConflict, cartsvc.ReasonDuplicateParticipant, "participant already added")}
	resp := httptest.NewRecorder()
	ParticipantsAdd(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/cart/participants/add", `{"name":"Ana"}`, identity.Guest("guest_abcdefgh")))
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestCartMigrateUsesHeaderGuestToken(t *testing.T) {
	svc := &stubMigration{}
	userID := uuid.New()
	req := newRequest(http.MethodPost, "/api/v1/cart/migrate", "", identity.Authenticated(userID, enums.UserRoleCustomer))
	req.Header.Set(middleware.GuestTokenHeader, "guest_abcdefgh")
	resp := httptest.NewRecorder()
	CartMigrate(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "guest_abcdefgh", svc.token)
	assert.Equal(t, userID, svc.caller.UserID())
	assert.Contains(t, resp.Body.String(), `"mode":"rekeyed"`)
}

func TestCartCheckoutBelowMinimumIsStateConflict(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.NewReason(pkgerrors.CodeStateConflict, "BELOW_MINIMUM_CONTRIBUTION", "below minimum").
		WithDetails(map[string]any{"minimum": "100.00"})}
	resp := httptest.NewRecorder()
	CartCheckout(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/cart/checkout", `{}`, identity.Guest("guest_abcdefgh")))

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	code, details := decodeErrorCode(t, resp)
	assert.Equal(t, string(pkgerrors.CodeStateConflict), code)
	assert.Equal(t, "100.00", details["minimum"])
}

func TestCheckoutWebhookReadsQueryAndBody(t *testing.T) {
	svc := &stubCheckout{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/webhook?topic=payment", strings.NewReader(`{"type":"payment.updated","data":{"id":12345}}`))
	resp := httptest.NewRecorder()
	CheckoutWebhook(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "payment", svc.note.Topic)
	assert.Equal(t, "payment.updated", svc.note.Type)
	assert.Equal(t, "12345", svc.note.ID)
}

func TestCheckoutWebhookAcksGarbage(t *testing.T) {
	svc := &stubCheckout{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/webhook", strings.NewReader(`not json`))
	resp := httptest.NewRecorder()
	CheckoutWebhook(svc, nil).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}
