package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/internal/identity"
	"github.com/angelmondragon/partyshop-backend/pkg/auth"
	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "partyshop", ExpirationMinutes: 60}

func newTestResolver(t *testing.T) *identity.Resolver {
	t.Helper()
	resolver, err := identity.NewResolver(auth.NewVerifier(testJWT))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return resolver
}

func mintTestToken(t *testing.T, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func captureIdentity(dst *identity.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*dst = identity.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestIdentityAnonymousPassesThrough(t *testing.T) {
	var got identity.Identity
	handler := Identity(newTestResolver(t), nil)(captureIdentity(&got))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !got.IsAnonymous() {
		t.Fatalf("expected anonymous identity, got %s", got.Kind())
	}
}

func TestIdentityRejectsInvalidBearer(t *testing.T) {
	var got identity.Identity
	handler := Identity(newTestResolver(t), nil)(captureIdentity(&got))

	for _, header := range []string{"Bearer invalid", "Basic dXNlcjpwYXNz", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.Header.Set("Authorization", header)
		req.Header.Set(GuestTokenHeader, "guest_fallback")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401 got %d", header, resp.Code)
		}
	}
}

func TestIdentityResolvesAuthenticatedUser(t *testing.T) {
	userID := uuid.New()
	var got identity.Identity
	handler := Identity(newTestResolver(t), nil)(captureIdentity(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, userID, enums.UserRoleCustomer))
	req.Header.Set(GuestTokenHeader, "guest_ignored")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !got.IsAuthenticated() || got.UserID() != userID {
		t.Fatalf("expected authenticated %s, got %s %s", userID, got.Kind(), got.UserID())
	}
	if got.Role() != enums.UserRoleCustomer {
		t.Fatalf("expected customer role got %s", got.Role())
	}
}

func TestIdentityGuestHeaderWinsOverQuery(t *testing.T) {
	var got identity.Identity
	handler := Identity(newTestResolver(t), nil)(captureIdentity(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart?guestToken=guest_from_query", nil)
	req.Header.Set(GuestTokenHeader, "guest_from_header")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if !got.IsGuest() || got.GuestToken() != "guest_from_header" {
		t.Fatalf("expected header guest token, got %q", got.GuestToken())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart?guestToken=guest_from_query", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got.GuestToken() != "guest_from_query" {
		t.Fatalf("expected query guest token, got %q", got.GuestToken())
	}
}

func TestIdentityRejectsMalformedGuestToken(t *testing.T) {
	var got identity.Identity
	handler := Identity(newTestResolver(t), nil)(captureIdentity(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(GuestTokenHeader, "bad token!")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRequireAuthRejectsGuest(t *testing.T) {
	handler := RequireAuth(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/create", nil)
	req = req.WithContext(identity.WithContext(req.Context(), identity.Guest("guest_abcdefgh")))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name string
		id   identity.Identity
		want int
	}{
		{"anonymous", identity.Anonymous(), http.StatusUnauthorized},
		{"guest", identity.Guest("guest_abcdefgh"), http.StatusUnauthorized},
		{"customer", identity.Authenticated(uuid.New(), enums.UserRoleCustomer), http.StatusForbidden},
		{"admin", identity.Authenticated(uuid.New(), enums.UserRoleAdmin), http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
		req = req.WithContext(identity.WithContext(req.Context(), tc.id))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, resp.Code)
		}
	}
}
