// Package responses writes the JSON envelopes every handler returns:
// {"data": ...} on success and {"error": {code, message, details}} on failure.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"sync/atomic"

	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

var debugDetails atomic.Bool

// encodeFailure is sent when a payload cannot be marshalled.
var encodeFailure = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}` + "\n")

type errorBody struct {
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// SetDebugDetails toggles the details.debug block on error responses. The
// dump carries driver messages so production keeps it off.
func SetDebugDetails(enabled bool) {
	debugDetails.Store(enabled)
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, struct {
		Data any `json:"data"`
	}{data})
}

// WriteError renders err with the status and public message of its code.
// Untyped errors become internal errors. Client errors keep the caller's
// message; server errors only show the generic one.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	dump := pkgerrors.Dump(err)

	body := errorBody{
		Code:    typed.Code(),
		Message: meta.PublicMessage,
		Details: publicDetails(typed, meta.DetailsAllowed, dump),
	}
	if meta.HTTPStatus < http.StatusInternalServerError && typed.Message() != "" {
		body.Message = typed.Message()
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, dump.Fields())
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(logCtx, "request.error", err)
		} else {
			logg.Warn(logCtx, "request.error")
		}
	}

	writeJSON(w, meta.HTTPStatus, struct {
		Error errorBody `json:"error"`
	}{body})
}

// publicDetails always carries the reason. Caller details pass only when the
// code allows them.
func publicDetails(typed *pkgerrors.Error, allowed bool, dump pkgerrors.ErrorDump) map[string]any {
	details := map[string]any{}
	if allowed {
		switch d := typed.Details().(type) {
		case nil:
		case map[string]any:
			maps.Copy(details, d)
		case map[string]string:
			for k, v := range d {
				details[k] = v
			}
		default:
			details["info"] = d
		}
	}
	if reason := typed.Reason(); reason != "" {
		details["reason"] = reason
	}
	if debugDetails.Load() {
		details["debug"] = dump
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// writeJSON marshals before touching the response so an unencodable payload
// still produces a well-formed 500.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		status, raw = http.StatusInternalServerError, encodeFailure
	} else {
		raw = append(raw, '\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
