package client

import (
	"errors"
	"fmt"
)

// Kind classifies failures of authenticated backend calls.
type Kind string

const (
	// KindAuthExpired means the refresh cycle failed or no refresh token
	// was available; credentials have been cleared.
	KindAuthExpired Kind = "auth_expired"
	// KindNetwork is a transport failure with no HTTP response.
	KindNetwork Kind = "network"
	// KindServer is a non-2xx, non-401 response, surfaced unmodified.
	KindServer Kind = "server"
	// KindTimeout is a request that exceeded its deadline.
	KindTimeout Kind = "timeout"
)

// Error is the error type returned by the authenticated client.
type Error struct {
	Kind   Kind
	Status int    // HTTP status for KindServer, zero otherwise
	Body   string // response body for KindServer, empty otherwise
	Err    error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServer:
		return fmt.Sprintf("server error: status %d: %s", e.Status, e.Body)
	case KindAuthExpired:
		if e.Err != nil {
			return fmt.Sprintf("authentication expired: %v", e.Err)
		}
		return "authentication expired"
	case KindTimeout:
		return fmt.Sprintf("request timed out: %v", e.Err)
	default:
		return fmt.Sprintf("network error: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuthExpired reports whether err is an authentication-expired failure.
func IsAuthExpired(err error) bool {
	return kindOf(err) == KindAuthExpired
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	return kindOf(err) == KindNetwork
}

// IsTimeout reports whether err is a deadline failure.
func IsTimeout(err error) bool {
	return kindOf(err) == KindTimeout
}

// StatusOf returns the HTTP status of a server error, or zero.
func StatusOf(err error) int {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Status
	}
	return 0
}

func kindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return ""
}
