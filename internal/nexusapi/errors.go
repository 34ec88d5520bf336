package nexusapi

import (
	"errors"
	"fmt"
)

// ErrSessionExpired indicates the refresh token was rejected or absent;
// the local session has been invalidated and the user must log in again.
var ErrSessionExpired = errors.New("nexusapi: session expired")

// APIError is a non-2xx response from the NexusGreen backend, carrying
// the backend-provided message when the body had one.
type APIError struct {
	Status   int
	Message  string
	Endpoint string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("nexusgreen api: %s: %d %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("nexusgreen api: %s: unexpected status %d", e.Endpoint, e.Status)
}

// AsAPIError unwraps an APIError if the chain contains one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsAuthFailure reports whether the error is an authentication failure
// from the backend (invalid credentials or an expired/invalid token).
func IsAuthFailure(err error) bool {
	if errors.Is(err, ErrSessionExpired) {
		return true
	}
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Status == 401
	}
	return false
}
