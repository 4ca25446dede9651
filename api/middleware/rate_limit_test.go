package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type failingRateStore struct{}

func (failingRateStore) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return false, 0, errors.New("redis down")
}

func TestRateLimitBlocksPerIP(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(store, 2, time.Minute, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("10.0.0.1:1000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, rec.Code)
		}
	}
	blocked := send("10.0.0.1:1001")
	if blocked.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", blocked.Code)
	}
	if blocked.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60 got %q", blocked.Header().Get("Retry-After"))
	}
	if rec := send("10.0.0.2:1000"); rec.Code != http.StatusOK {
		t.Fatalf("other ip should pass, got %d", rec.Code)
	}
}

func TestRateLimitDisabledWithoutLimit(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := RateLimit(failingRateStore{}, 0, time.Minute, nil)(next)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", rec.Code)
	}
}

func TestRateLimitStoreFailureIsDependencyError(t *testing.T) {
	handler := RateLimit(failingRateStore{}, 5, time.Minute, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

type recordedObservation struct {
	route  string
	method string
	status int
}

type fakeObserver struct {
	seen []recordedObservation
}

func (f *fakeObserver) Observe(route, method string, status int, _ time.Duration) {
	f.seen = append(f.seen, recordedObservation{route: route, method: method, status: status})
}

func TestLoggingObservesRoutePattern(t *testing.T) {
	observer := &fakeObserver{}
	r := chi.NewRouter()
	r.Use(Logging(nil, observer))
	r.Get("/api/v1/products/{productId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/products/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	if len(observer.seen) != 2 {
		t.Fatalf("expected 2 observations got %d", len(observer.seen))
	}
	if got := observer.seen[0]; got.route != "/api/v1/products/{productId}" || got.status != http.StatusNotFound {
		t.Fatalf("unexpected observation %+v", got)
	}
	if got := observer.seen[1]; got.route != "unmatched" {
		t.Fatalf("expected unmatched route label, got %q", got.route)
	}
}
