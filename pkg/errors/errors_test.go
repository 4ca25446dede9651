package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFor(t *testing.T) {
	want := map[Code]Metadata{
		CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeForbidden:     {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
		CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
		CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "precondition failed", DetailsAllowed: true},
		CodeIdempotency:   {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
		CodeRateLimit:     {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},
		CodeInternal:      {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
	}
	for code, meta := range want {
		assert.Equal(t, meta, MetadataFor(code), "code %s", code)
	}
	assert.Equal(t, want[CodeInternal], MetadataFor("SOMETHING_UNKNOWN"))
}

func TestConstructors(t *testing.T) {
	plain := New(CodeValidation, "missing foo")
	assert.Equal(t, CodeValidation, plain.Code())
	assert.Equal(t, "missing foo", plain.Message())
	assert.Empty(t, plain.Reason())
	assert.Nil(t, plain.Details())
	assert.Nil(t, plain.Unwrap())

	detail := map[string]any{"field": "foo"}
	assert.Same(t, plain, plain.WithDetails(detail))
	assert.Equal(t, detail, plain.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "save cart")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeConflict, wrapped.Code())
	assert.Equal(t, "CONFLICT: save cart", wrapped.Error())
}

func TestReasons(t *testing.T) {
	err := fmt.Errorf("load cart: %w", NewReason(CodeNotFound, "CART_NOT_FOUND", "cart not found"))

	assert.True(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(err, CodeConflict))
	assert.True(t, IsReason(err, "CART_NOT_FOUND"))
	assert.False(t, IsReason(stdErrors.New("plain"), "CART_NOT_FOUND"))
	assert.Equal(t, "DUPLICATE", New(CodeConflict, "dup").WithReason("DUPLICATE").Reason())
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "NOT_FOUND[CART_NOT_FOUND]: cart not found", NewReason(CodeNotFound, "CART_NOT_FOUND", "cart not found").Error())
	assert.Equal(t, "VALIDATION_ERROR: bad", New(CodeValidation, "bad").Error())
}

func TestNilReceiver(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Error())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.WithReason("X"))
	assert.Nil(t, e.WithDetails("x"))
}

func TestAsFindsOutermost(t *testing.T) {
	inner := New(CodeNotFound, "missing")
	outer := Wrap(CodeDependency, fmt.Errorf("lookup: %w", inner), "catalog")

	got := As(fmt.Errorf("handler: %w", outer))
	require.NotNil(t, got)
	assert.Equal(t, CodeDependency, got.Code())
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestDump(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))

	err := Wrap(CodeDependency, stdErrors.New("connection refused"), "load cart").WithReason("DB_DOWN")
	dump := Dump(err)
	assert.Equal(t, CodeDependency, dump.Code)
	assert.Equal(t, "DB_DOWN", dump.Reason)
	assert.Nil(t, dump.Postgres)
	assert.Len(t, dump.Chain, 2)

	fields := dump.Fields()
	assert.Equal(t, "DB_DOWN", fields["error_reason"])
	assert.NotContains(t, fields, "pg_code")
}

func TestDumpPostgresDetail(t *testing.T) {
	cases := map[string]error{
		"pgx": &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key", TableName: "users", Message: "duplicate key"},
		"pq":  &pq.Error{Code: "23505", Constraint: "users_email_key", Table: "users", Message: "duplicate key"},
	}
	for name, pgErr := range cases {
		t.Run(name, func(t *testing.T) {
			dump := Dump(Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "create user"))
			require.NotNil(t, dump.Postgres)
			assert.Equal(t, "23505", dump.Postgres.SQLState)
			assert.Equal(t, "users_email_key", dump.Postgres.Constraint)
			assert.Equal(t, "users", dump.Postgres.Table)
			assert.Equal(t, "23505", dump.Fields()["pg_code"])
		})
	}
}
