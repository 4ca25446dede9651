package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

// rateLimiter counts hits against a fixed window per scope.
type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// counter is one fixed-window bucket a request is charged against.
type counter struct {
	dimension string
	scope     string
	limit     int
}

// charge walks counters in order and stops at the first that rejects. The
// returned counter is nil when every bucket allowed the request.
func charge(ctx context.Context, store rateLimiter, window time.Duration, counters ...counter) (*counter, int64, error) {
	for i := range counters {
		c := &counters[i]
		if c.limit <= 0 || c.scope == "" {
			continue
		}
		allowed, hits, err := store.FixedWindowAllow(ctx, c.scope, int64(c.limit), window)
		if err != nil {
			return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting")
		}
		if !allowed {
			return c, hits, nil
		}
	}
	return nil, 0, nil
}

// RateLimit applies a fixed window per client IP. A zero limit or window
// disables it.
func RateLimit(store rateLimiter, limit int, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || limit <= 0 || window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := clientIP(r)
			blocked, hits, err := charge(ctx, store, window, counter{dimension: "ip", scope: "ip:" + ip, limit: limit})
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if blocked != nil {
				rejectRateLimited(ctx, logg, w, "rate_limit.blocked", window, hits, blocked, map[string]any{"ip": ip})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, event string, window time.Duration, hits int64, c *counter, fields map[string]any) {
	if logg != nil {
		fields["scope"] = c.dimension
		fields["attempts"] = hits
		fields["limit"] = c.limit
		fields["window_seconds"] = int(window.Seconds())
		logg.Warn(logg.WithFields(ctx, fields), event)
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.NewReason(pkgerrors.CodeRateLimit, "TOO_MANY_REQUESTS", "too many requests, try again later"))
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
