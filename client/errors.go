package client

import (
	"errors"
	"fmt"
)

var (
	ErrCamped       = errors.New("camp is deployed")
	ErrDebounced    = errors.New("destination debounced")
	ErrInFlight     = errors.New("snapshot request already in flight")
	ErrBusy         = errors.New("action already in progress")
	ErrNoEndpoint   = errors.New("endpoint not configured")
	ErrMoving       = errors.New("hero is moving")
	ErrNotGathering = errors.New("not gathering")
	ErrClosed       = errors.New("session closed")
)

// APIError is a failed reply turned into a Go error.
type APIError struct {
	Path    string
	Status  int
	Code    string
	Detail  string
	Message string
}

func (e *APIError) Error() string {
	code := e.Code
	if code == "" {
		code = "rejected"
	}
	msg := fmt.Sprintf("%s: %s", e.Path, code)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += " [" + e.Detail + "]"
	}
	return msg
}

// IsNetwork reports whether the request never got a response.
func (e *APIError) IsNetwork() bool { return e.Code == codeNetwork }
