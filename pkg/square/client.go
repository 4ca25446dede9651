// Package square wraps the Square SDK calls the checkout flow makes and maps
// Square failures onto pkg/errors codes.
package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/partyshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var environments = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// sensitiveFields are masked whenever a field name contains one of them.
var sensitiveFields = []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"}

type Client struct {
	links       paymentLinksAPI
	environment string
	locationID  string
	redirectURL string
	logg        *logger.Logger
}

func NewClient(ctx context.Context, cfg config.PaymentsConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	location := strings.TrimSpace(cfg.LocationID)
	switch {
	case token == "":
		return nil, errors.New("square access token is required")
	case location == "":
		return nil, errors.New("square location id is required")
	}

	baseURL := environments[env]
	if override := strings.TrimSpace(cfg.BaseURL); override != "" {
		baseURL = override
	}
	opts := []sqoption.RequestOption{sqoption.WithBaseURL(baseURL), sqoption.WithToken(token)}
	if cfg.Timeout > 0 {
		opts = append(opts, sqoption.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	sdk := sqclient.NewClient(opts...)

	logg.Info(logg.WithFields(ctx, map[string]any{"environment": env, "location_id": location}), "square client ready")
	return &Client{
		links:       sdk.Checkout.PaymentLinks,
		environment: env,
		locationID:  location,
		redirectURL: strings.TrimSpace(cfg.RedirectURL),
		logg:        logg,
	}, nil
}

func normalizeEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env == "" {
		return sandboxEnv, nil
	}
	if _, ok := environments[env]; !ok {
		return "", fmt.Errorf("square environment must be %q or %q, got %q", sandboxEnv, productionEnv, raw)
	}
	return env, nil
}

// idempotencyKey keeps a caller-supplied key so retries of the same checkout
// reuse it; otherwise it mints "<prefix>-<uuid>".
func idempotencyKey(prefix, provided string) string {
	if key := strings.TrimSpace(provided); key != "" {
		return key
	}
	return prefix + "-" + uuid.NewString()
}

func (c *Client) logCall(ctx context.Context, op, phase string, fields map[string]any, err error) {
	if c.logg == nil {
		return
	}
	scrubbed := map[string]any{"operation": op, "phase": phase}
	for k, v := range fields {
		scrubbed[k] = scrub(k, v)
	}
	ctx = c.logg.WithFields(ctx, scrubbed)
	if err != nil {
		c.logg.Error(ctx, "square "+op+" failed", err)
		return
	}
	c.logg.Info(ctx, "square "+op+" "+phase)
}

func scrub(field string, value any) any {
	lower := strings.ToLower(field)
	for _, s := range sensitiveFields {
		if strings.Contains(lower, s) {
			return "[REDACTED]"
		}
	}
	return value
}

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

// codeForStatus sends unknown 4xx to validation and everything else to
// dependency.
func codeForStatus(status int) pkgerrors.Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

// classify wraps an SDK failure. Square error bodies override the status
// mapping for reused idempotency keys and authentication failures.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	msg := "square " + op + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	code := codeForStatus(apiErr.StatusCode)
	for _, detail := range squareErrors(apiErr) {
		switch {
		case detail == nil:
			continue
		case detail.Code == sq.ErrorCodeIdempotencyKeyReused:
			return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, msg)
		case detail.Category == sq.ErrorCategoryAuthenticationError:
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg)
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

// squareErrors decodes the {"errors": [...]} body the SDK keeps as the
// APIError cause.
func squareErrors(apiErr *sqcore.APIError) []*sq.Error {
	cause := apiErr.Unwrap()
	if cause == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(strings.TrimSpace(cause.Error())), &body) != nil {
		return nil
	}
	return body.Errors
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
