package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
)

const maxBodyBytes int64 = 1 << 20

var structValidator = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}()

// ruleMessages renders a failed validator tag for API clients.
var ruleMessages = map[string]func(param string) string{
	"required": func(string) string { return "is required" },
	"email":    func(string) string { return "must be a valid email" },
	"uuid":     func(string) string { return "must be a valid id" },
	"min":      func(p string) string { return "must be at least " + p },
	"max":      func(p string) string { return "must be at most " + p },
	"gt":       func(p string) string { return "must be greater than " + p },
	"gte":      func(p string) string { return "must be greater than or equal to " + p },
	"oneof":    func(p string) string { return fmt.Sprintf("must be one of [%s]", p) },
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// DecodeJSONBody reads exactly one JSON object into dest and validates it.
// Unknown fields are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	return decodeBody(r, dest, true)
}

// DecodeOptionalJSONBody accepts an empty body and still validates dest.
func DecodeOptionalJSONBody(r *http.Request, dest any) error {
	return decodeBody(r, dest, false)
}

func decodeBody(r *http.Request, dest any, required bool) error {
	body := r.Body
	if body == nil {
		body = http.NoBody
	}
	limited := http.MaxBytesReader(nil, body, maxBodyBytes)
	defer func() { _, _ = io.Copy(io.Discard, limited) }()

	dec := json.NewDecoder(limited)
	dec.DisallowUnknownFields()
	err := dec.Decode(dest)
	switch {
	case errors.Is(err, io.EOF):
		if required {
			return pkgerrors.New(pkgerrors.CodeValidation, "request body required")
		}
	case err != nil:
		return malformedBody(err)
	case dec.More():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid request body").
			WithDetails(map[string]any{"error": "body must contain a single JSON object"})
	}
	return ValidateStruct(dest)
}

// ValidateStruct runs the validate tags on v and reports failures keyed by
// JSON field name.
func ValidateStruct(v any) error {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = ruleMessage(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func ruleMessage(fe validator.FieldError) string {
	tag := fe.Tag()
	if tag == "uuid4" {
		tag = "uuid"
	}
	if render, ok := ruleMessages[tag]; ok {
		return render(fe.Param())
	}
	return "is invalid"
}

func malformedBody(err error) error {
	details := map[string]any{"error": err.Error()}
	var (
		typeErr *json.UnmarshalTypeError
		sizeErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &sizeErr):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large").
			WithDetails(map[string]any{"limit": sizeErr.Limit})
	case errors.As(err, &typeErr) && typeErr.Field != "":
		details["field"] = typeErr.Field
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(details)
}
