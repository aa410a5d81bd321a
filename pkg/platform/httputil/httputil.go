// Package httputil provides the JSON response helpers shared by all HTTP
// handlers: domain-error translation and request decode-and-validate.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "expenseflow/pkg/domain-errors"
)

// codeStatus maps domain error codes to HTTP status codes. Unknown codes fall
// through to 500 so new codes fail closed until mapped.
var codeStatus = map[dErrors.Code]int{
	dErrors.CodeBadRequest:           http.StatusBadRequest,
	dErrors.CodeValidation:           http.StatusBadRequest,
	dErrors.CodeInvalidInput:         http.StatusBadRequest,
	dErrors.CodeUnauthorized:         http.StatusUnauthorized,
	dErrors.CodeForbidden:            http.StatusForbidden,
	dErrors.CodeNotFound:             http.StatusNotFound,
	dErrors.CodeConflict:             http.StatusConflict,
	dErrors.CodeInvariantViolation:   http.StatusConflict,
	dErrors.CodeNoMatchingRule:       http.StatusUnprocessableEntity,
	dErrors.CodeAlreadyOpen:          http.StatusConflict,
	dErrors.CodeClaimClosed:          http.StatusConflict,
	dErrors.CodeUnauthorizedApprover: http.StatusForbidden,
	dErrors.CodeInternal:             http.StatusInternalServerError,
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError translates a domain error into a JSON error response. Internal
// errors omit the description so storage details never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := codeStatus[code]
	if !ok {
		code = dErrors.CodeInternal
		status = http.StatusInternalServerError
	}

	body := errorBody{Error: string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.ErrorDescription = de.Message
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Validatable is implemented by request types that parse and validate
// themselves after JSON decoding.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes the request body into T, runs its validation, and
// writes the error response itself on failure so handlers stay linear.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (PT, bool) {
	req := PT(new(T))
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		logger.WarnContext(ctx, "invalid request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
