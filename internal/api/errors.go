package api

import (
	"errors"
	"fmt"
)

// Failure reasons surfaced to callers. They match the codes the UI layer
// branches on.
const (
	ReasonMissingCredentials = "missing-credentials"
	ReasonBadStatus          = "bad-status"
	ReasonException          = "exception"
)

// ErrMissingCredentials is returned before any network call when token or
// user id (or mobile, where required) is absent.
var ErrMissingCredentials = errors.New("missing credentials")

// StatusError reports a reachable server that answered with a non-success
// HTTP code or an application status other than 200.
type StatusError struct {
	HTTPStatus int
	Status     string
	Message    string
	// Payload is the decoded response body, kept for error display.
	Payload map[string]any
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api status %s (http %d): %s", e.Status, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("api status %s (http %d)", e.Status, e.HTTPStatus)
}

// ReasonOf classifies an error into one of the Reason codes. A nil error has
// no reason.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrMissingCredentials) {
		return ReasonMissingCredentials
	}
	var se *StatusError
	if errors.As(err, &se) {
		return ReasonBadStatus
	}
	return ReasonException
}

// UserMessage returns the server message when there is one and fallback otherwise.
// Transport failures always map to a generic network message.
func UserMessage(err error, fallback string) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		if se.Message != "" {
			return se.Message
		}
		return fallback
	case errors.Is(err, ErrMissingCredentials):
		return "Please login again."
	default:
		return "Please check your internet connection and try again."
	}
}
