package fleetapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every *Error matches ErrFleet; kind-specific errors also match
// their own sentinel.
var (
	ErrFleet                = errors.New("fleet API error")
	ErrInvalidToken         = errors.New("invalid token")
	ErrSubscriptionRequired = errors.New("subscription required")
	ErrVehicleOffline       = errors.New("vehicle offline")
)

// Error is a failed fleet API call
type Error struct {
	Kind       error
	StatusCode int
	Message    string
}

// NewError creates an error of the given kind
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Error returns the message, or the kind when there is none, with the status code when known
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.kind().Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	return msg
}

// Is matches the error kind sentinel
func (e *Error) Is(target error) bool {
	return target == ErrFleet || target == e.kind()
}

func (e *Error) kind() error {
	if e.Kind == nil {
		return ErrFleet
	}
	return e.Kind
}

// kindForStatus maps an HTTP status to an error kind
func kindForStatus(status int, code string) error {
	switch {
	case status == http.StatusUnauthorized || code == "invalid_token":
		return ErrInvalidToken
	case status == http.StatusPaymentRequired || code == "subscription_required":
		return ErrSubscriptionRequired
	case status == http.StatusRequestTimeout || code == "vehicle_offline":
		return ErrVehicleOffline
	default:
		return ErrFleet
	}
}
