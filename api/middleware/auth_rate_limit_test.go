package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func credentialRequest(addr, email string) *http.Request {
	body := `{"email":"` + email + `","password":"secret"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.RemoteAddr = addr
	return req
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), `"password":"secret"`, "body must survive the limiter")
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRateLimitEmailBucket(t *testing.T) {
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 0, 2), newFakeRateStore(), nil)(okHandler(t))

	codes := make([]int, 0, 4)
	for _, email := range []string{"blocked@example.com", " BLOCKED@example.com", "blocked@example.com", "other@example.com"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, credentialRequest("1.2.3.4:5678", email))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			var payload struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
			assert.Equal(t, string(pkgerrors.CodeRateLimit), payload.Error.Code)
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429, 200}, codes)
}

func TestAuthRateLimitIPBucket(t *testing.T) {
	handler := AuthRateLimit(NewAuthRateLimitPolicy("register", time.Minute, 1, 0), newFakeRateStore(), nil)(okHandler(t))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, credentialRequest("5.6.7.8:1234", "a@example.com"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, credentialRequest("5.6.7.8:1234", "b@example.com"))
	elsewhere := httptest.NewRecorder()
	handler.ServeHTTP(elsewhere, credentialRequest("9.9.9.9:1234", "b@example.com"))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, http.StatusOK, elsewhere.Code)
}

func TestAuthRateLimitPoliciesDoNotShareBuckets(t *testing.T) {
	store := newFakeRateStore()
	login := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 1, 0), store, nil)(okHandler(t))
	register := AuthRateLimit(NewAuthRateLimitPolicy("register", time.Minute, 1, 0), store, nil)(okHandler(t))

	rec := httptest.NewRecorder()
	login.ServeHTTP(rec, credentialRequest("1.1.1.1:1", "x@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = httptest.NewRecorder()
	register.ServeHTTP(rec, credentialRequest("1.1.1.1:1", "x@example.com"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := AuthRateLimit(NewAuthRateLimitPolicy("", 0, 5, 5), failingRateStore{}, nil)(okHandler(t))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("1.1.1.1:1", "x@example.com"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHashEmail(t *testing.T) {
	assert.Equal(t, hashEmail([]byte(`{"email":"A@B.com"}`)), hashEmail([]byte(`{"email":" a@b.com "}`)))
	assert.Empty(t, hashEmail([]byte(`not json`)))
	assert.Empty(t, hashEmail([]byte(`{"email":""}`)))
	assert.Len(t, hashEmail([]byte(`{"email":"a@b.com"}`)), 64)
}

func TestClientIPPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:9999"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.2")
	assert.Equal(t, "172.16.0.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
