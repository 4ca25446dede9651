package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/partyshop-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	maxIdempotencyKeyLen = 128
	inFlightTTL          = 2 * time.Minute
)

const (
	ReasonIdempotencyKeyInvalid = "INVALID_IDEMPOTENCY_KEY"
	ReasonIdempotencyKeyReused  = "IDEMPOTENCY_KEY_REUSED"
	ReasonIdempotencyInFlight   = "IDEMPOTENCY_IN_FLIGHT"
)

// replayRoutes maps "METHOD path" to how long a completed response is kept.
var replayRoutes = map[string]time.Duration{
	http.MethodPost + " /api/v1/orders/create": 24 * time.Hour,
	http.MethodPost + " /api/v1/cart/checkout": 24 * time.Hour,
}

// storedResponse is what lives under an idempotency key. Until the handler
// finishes it only carries the fingerprint with Done unset.
type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Done        bool   `json:"done"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// the routes in replayRoutes. Requests without the header run normally.
// A duplicate arriving while the first is still running is rejected, and
// server errors release the key so the client can retry them.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ttl, covered := replayTTL(r)
			header := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if !covered || store == nil || header == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(header) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.NewReason(pkgerrors.CodeValidation, ReasonIdempotencyKeyInvalid, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			key := store.IdempotencyKey(strings.Join([]string{OwnerKeyFromContext(ctx), r.Method, r.URL.Path}, "|"), header)

			existing, err := loadResponse(r, store, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if existing == nil {
				reserved, err := reserve(r, store, key, fingerprint)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
					return
				}
				if !reserved {
					existing = &storedResponse{Fingerprint: fingerprint}
				}
			}
			if existing != nil {
				if rerr := replay(w, existing, fingerprint); rerr != nil {
					responses.WriteError(ctx, logg, w, rerr)
				}
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			finished := false
			defer func() {
				if finished {
					return
				}
				// Handler panicked or failed hard; free the key for a retry.
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
			}()
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				return
			}
			finished = true
			if err := complete(r, store, key, ttl, storedResponse{
				Fingerprint: fingerprint,
				Done:        true,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			}); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency response", err)
			}
		})
	}
}

func replayTTL(r *http.Request) (time.Duration, bool) {
	ttl, ok := replayRoutes[r.Method+" "+requestRoute(r)]
	return ttl, ok
}

// requestRoute prefers the chi pattern once it is fully resolved. Mounted as
// group middleware the pattern still ends in "/*", so the path is used.
func requestRoute(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	if trimmed := strings.TrimSuffix(r.URL.Path, "/"); trimmed != "" {
		return trimmed
	}
	return r.URL.Path
}

func loadResponse(r *http.Request, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(r.Context(), key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &stored, nil
}

func reserve(r *http.Request, store pkgredis.IdempotencyStore, key, fingerprint string) (bool, error) {
	payload, err := json.Marshal(storedResponse{Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}
	return store.SetNX(r.Context(), key, string(payload), inFlightTTL)
}

// complete swaps the in-flight marker for the finished response.
func complete(r *http.Request, store pkgredis.IdempotencyStore, key string, ttl time.Duration, resp storedResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := store.Del(r.Context(), key); err != nil {
		return err
	}
	_, err = store.SetNX(r.Context(), key, string(payload), ttl)
	return err
}

func replay(w http.ResponseWriter, stored *storedResponse, fingerprint string) error {
	if stored.Fingerprint != fingerprint {
		return pkgerrors.NewReason(pkgerrors.CodeIdempotency, ReasonIdempotencyKeyReused, "idempotency key reused with different request body")
	}
	if !stored.Done {
		return pkgerrors.NewReason(pkgerrors.CodeIdempotency, ReasonIdempotencyInFlight, "a request with this idempotency key is still running")
	}
	body, err := base64.StdEncoding.DecodeString(stored.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stored response")
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.WriteHeader(stored.Status)
	_, _ = w.Write(body)
	return nil
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// responseCapture tees the response so it can be stored after the handler.
type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
