package api

import "errors"

// ValidationError rejects a malformed request before anything is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return "invalid " + e.Field + ": " + e.Reason
}

var (
	// ErrIgnoredEvent is returned for webhook events that are not activity creates or updates.
	ErrIgnoredEvent = errors.New("ignored event")
	// ErrDuplicateDelivery is returned for a webhook delivery seen recently.
	ErrDuplicateDelivery = errors.New("duplicate delivery")
)
