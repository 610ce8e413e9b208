package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidCredentials = fmt.Errorf("invalid email or password")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrUserAlreadyExists  = fmt.Errorf("email already registered")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrAdminRequired      = fmt.Errorf("admin access required")

	ErrMalformedFrame   = fmt.Errorf("malformed frame")
	ErrStoreWrite       = fmt.Errorf("store write failed")
	ErrTransportFailed  = fmt.Errorf("transport failed")
	ErrRecipientOffline = fmt.Errorf("recipient offline")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)

// MapToHTTPStatus translates domain sentinels into HTTP status codes
// for the iris surface. Unknown errors are a 500: internal details
// never leak to the client.
func MapToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAdminRequired):
		return http.StatusForbidden
	case errors.Is(err, ErrUserAlreadyExists), errors.Is(err, ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
