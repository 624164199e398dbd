package web

// errors.go turns handler errors into JSON responses.
//
// The technical error is logged with the request id; the client receives the
// raw error text plus the mapped user message, action and support code from
// core.MapError.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/salesboard/internal/core"
	"github.com/JonMunkholm/salesboard/internal/logging"
)

var (
	errNoFile      = errors.New("no file provided")
	errFileTooBig  = errors.New("file too large")
	errBadForm     = errors.New("invalid multipart form")
	errRateLimited = errors.New("rate limit exceeded")
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	switch {
	case core.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrDuplicateCode):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes it as an ErrorResponse.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
