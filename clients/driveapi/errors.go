package driveapi

import (
	"errors"
	"fmt"
)

// Server error codes with fixed meaning for the guest-session core.
// All three "gone" codes are treated identically: the session no longer
// exists server-side and any local copy must be discarded.
const (
	CodeGuestSessionExpired  = "GUEST_SESSION_EXPIRED"
	CodeGuestSessionNotFound = "GUEST_SESSION_NOT_FOUND"
	CodeGuestUserNotFound    = "GUEST_USER_NOT_FOUND"
)

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("drive api: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("drive api: %s (status %d)", e.Message, e.Status)
}

// IsSessionGone reports whether err carries one of the three server codes
// meaning the guest session is expired or no longer known.
func IsSessionGone(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case CodeGuestSessionExpired, CodeGuestSessionNotFound, CodeGuestUserNotFound:
		return true
	}
	return false
}

// ErrorMessage extracts the server-provided message when err is an APIError,
// falling back to err.Error(). Used to surface action failures to the UI.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
