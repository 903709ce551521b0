package strava

import (
	"errors"
	"fmt"
	"net/http"
)

// UpstreamAPIError is returned for any failed Strava call:
// transport errors, non-2xx responses, and an open circuit breaker.
type UpstreamAPIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamAPIError) Error() string {
	s := "strava " + e.Op
	if e.StatusCode != 0 {
		s += fmt.Sprintf(": %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *UpstreamAPIError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the access token was rejected.
func (e *UpstreamAPIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// retryable failures count against the circuit breaker; client errors do not.
func (e *UpstreamAPIError) retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized reports whether err is a 401 from Strava.
func IsUnauthorized(err error) bool {
	var ue *UpstreamAPIError
	return errors.As(err, &ue) && ue.Unauthorized()
}
