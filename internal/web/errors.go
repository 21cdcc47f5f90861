package web

// errors.go turns pipeline errors into JSON responses.
//
// The technical error is logged with the request id; the client receives the
// coded message from core.MapError.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/pricetracker/internal/core"
	"github.com/JonMunkholm/pricetracker/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user message with the status from statusFor.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logging.FromContext(r.Context()).Warn("request error",
		"path", r.URL.Path,
		"status", status,
		"code", msg.Code,
		"error", err,
	)

	body := ErrorResponse{Error: err.Error(), Message: msg.Message, Action: msg.Action, Code: msg.Code}
	if status >= http.StatusInternalServerError {
		body.Error = msg.Message
	}
	writeJSON(w, status, body)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		invalid   *core.ValidationError
		invariant *core.InvariantError
		noPath    *core.NoConversionPathError
		noRate    *core.NoRateForDateError
		ambRate   *core.AmbiguousRateError
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &invariant):
		return http.StatusBadRequest
	case errors.As(err, &noPath), errors.As(err, &noRate):
		return http.StatusNotFound
	case errors.As(err, &ambRate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
