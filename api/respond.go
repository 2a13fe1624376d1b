package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"disputeflow/auth"
	"disputeflow/dispute"
)

// Envelope is the common response shape for every endpoint.
type Envelope struct {
	Status  bool              `json:"status"`
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// OK responds 200 with a success envelope.
func OK(w http.ResponseWriter, r *http.Request, message string, data any) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, Envelope{Status: true, Message: message, Data: data})
}

// Fail responds with a failure envelope at the given status code.
func Fail(w http.ResponseWriter, r *http.Request, code int, message string) {
	render.Status(r, code)
	render.JSON(w, r, Envelope{Status: false, Message: message})
}

// FailValidation responds 422 with field-level errors.
func FailValidation(w http.ResponseWriter, r *http.Request, fieldErrors map[string]string) {
	render.Status(r, http.StatusUnprocessableEntity)
	render.JSON(w, r, Envelope{Status: false, Message: "Validation error", Errors: fieldErrors})
}

// FailErr translates a service error into the envelope taxonomy. Storage
// errors collapse to a generic 500 with the detail logged, never echoed.
func FailErr(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingAuth):
		Fail(w, r, http.StatusUnauthorized, "Authorization header not found")
	case errors.Is(err, auth.ErrMalformedAuth):
		Fail(w, r, http.StatusBadRequest, "Malformed authorization header")
	case errors.Is(err, auth.ErrInvalidToken):
		Fail(w, r, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, auth.ErrInvalidCredentials):
		Fail(w, r, http.StatusUnauthorized, "Incorrect email or password")
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, dispute.ErrForbidden):
		Fail(w, r, http.StatusForbidden, "Permission denied")
	case errors.Is(err, auth.ErrValidation), errors.Is(err, dispute.ErrValidation):
		Fail(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, auth.ErrDuplicateEmail):
		Fail(w, r, http.StatusBadRequest, "Email already exists")
	case errors.Is(err, auth.ErrUserNotFound):
		Fail(w, r, http.StatusNotFound, "User not found")
	case errors.Is(err, dispute.ErrNotFound):
		Fail(w, r, http.StatusNotFound, "Dispute not found")
	default:
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.Error(err))
		Fail(w, r, http.StatusInternalServerError, "Internal server error")
	}
}
