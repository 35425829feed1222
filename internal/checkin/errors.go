package checkin

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a rejection reported by the validation service.
type ErrorKind string

const (
	KindTokenExpired     ErrorKind = "token_expired"
	KindOutOfRadius      ErrorKind = "out_of_radius"
	KindAlreadyCheckedIn ErrorKind = "already_checked_in"
	KindSessionInactive  ErrorKind = "session_inactive"
	KindInvalidToken     ErrorKind = "invalid_token"
	KindLocationRequired ErrorKind = "location_required"
	KindUnauthorized     ErrorKind = "unauthorized"
	KindNotFound         ErrorKind = "not_found"
	KindRejected         ErrorKind = "rejected"
)

// ServiceError is a rejection from the validation service. Compare kinds
// with errors.Is against the Err* kind sentinels below.
type ServiceError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("check-in rejected: %s (HTTP %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("check-in rejected: %s: %s", e.Kind, e.Message)
}

// Is matches any *ServiceError of the same Kind.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrTokenExpired     = &ServiceError{Kind: KindTokenExpired}
	ErrOutOfRadius      = &ServiceError{Kind: KindOutOfRadius}
	ErrAlreadyCheckedIn = &ServiceError{Kind: KindAlreadyCheckedIn}
	ErrSessionInactive  = &ServiceError{Kind: KindSessionInactive}
	ErrUnauthorized     = &ServiceError{Kind: KindUnauthorized}
)

// classify picks a kind from the service's code, falling back to the HTTP
// status and then to keywords in the message.
func classify(status int, code, message string) ErrorKind {
	switch ErrorKind(strings.ToLower(code)) {
	case KindTokenExpired, KindOutOfRadius, KindAlreadyCheckedIn, KindSessionInactive,
		KindInvalidToken, KindLocationRequired, KindUnauthorized, KindNotFound:
		return ErrorKind(strings.ToLower(code))
	}

	switch status {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusGone:
		return KindTokenExpired
	case http.StatusNotFound:
		return KindNotFound
	}

	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "expired"):
		return KindTokenExpired
	case strings.Contains(msg, "radius"), strings.Contains(msg, "geofence"),
		strings.Contains(msg, "too far"), strings.Contains(msg, "outside"):
		return KindOutOfRadius
	case strings.Contains(msg, "already"):
		return KindAlreadyCheckedIn
	case strings.Contains(msg, "not active"), strings.Contains(msg, "inactive"), strings.Contains(msg, "closed"):
		return KindSessionInactive
	case strings.Contains(msg, "invalid token"), strings.Contains(msg, "invalid qr"):
		return KindInvalidToken
	}
	if status == http.StatusConflict {
		return KindAlreadyCheckedIn
	}
	return KindRejected
}
