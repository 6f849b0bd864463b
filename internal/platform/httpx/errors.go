// Package httpx writes JSON and RFC7807 problem responses.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors mapped onto problem responses by RespondError.
var (
	ErrValidation  = errors.New("validation failed")
	ErrUnavailable = errors.New("service unavailable")
	ErrRateLimited = errors.New("rate limited")
)

// UserMessager is implemented by errors that carry a message safe to show to
// end users.
type UserMessager interface {
	UserMessage() string
}

// RespondError maps err onto a problem response. Only validation errors and
// user messages reach the client; anything else becomes an opaque 500.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", userMessage(err))
	case errors.Is(err, ErrRateLimited):
		Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func userMessage(err error) string {
	var um UserMessager
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return ""
}
