package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/partyshop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

// maxCredentialBody bounds how much of a login or register body is buffered
// to find the email.
const maxCredentialBody = 64 << 10

// AuthRateLimitPolicy throttles one credential endpoint by client IP and by
// the email in the request body.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// counters builds the IP bucket and, when an email is present, the email
// bucket. Emails are stored hashed so Redis never holds addresses.
func (p AuthRateLimitPolicy) counters(ip, emailHash string) []counter {
	out := []counter{{dimension: "ip", scope: "auth:" + p.name + ":ip:" + ip, limit: p.ipLimit}}
	if ip == "" {
		out[0].scope = ""
	}
	if emailHash != "" {
		out = append(out, counter{dimension: "email", scope: "auth:" + p.name + ":email:" + emailHash, limit: p.emailLimit})
	}
	return out
}

// AuthRateLimit enforces the policy before the auth handler runs. The body is
// restored so the handler decodes it normally.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || !policy.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var emailHash string
			if policy.emailLimit > 0 && r.Body != nil {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxCredentialBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				emailHash = hashEmail(body)
			}

			ip := clientIP(r)
			blocked, hits, err := charge(ctx, store, policy.window, policy.counters(ip, emailHash)...)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if blocked != nil {
				fields := map[string]any{"policy": policy.name}
				if blocked.dimension == "ip" {
					fields["ip"] = ip
				} else {
					fields["email_hash"] = emailHash
				}
				rejectRateLimited(ctx, logg, w, "auth.rate_limit.blocked", policy.window, hits, blocked, fields)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hashEmail returns the hex SHA-256 of the normalized email field, or "" when
// the body carries none.
func hashEmail(body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
