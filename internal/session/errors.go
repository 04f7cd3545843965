package session

import (
	"errors"
	"fmt"
)

var (
	// ErrCallInProgress is returned when a call is placed while another is active.
	ErrCallInProgress = errors.New("call already in progress")
	// ErrSessionClosed is returned for commands issued after Close.
	ErrSessionClosed = errors.New("session closed")
)

// AuthError means the access token could not be obtained. The call was
// never attempted.
type AuthError struct {
	Identity string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization failed for %s: %v", e.Identity, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConnectFailure means the transport could not establish the call.
type ConnectFailure struct {
	Reason string
	Err    error
}

func (e *ConnectFailure) Error() string {
	if e.Err != nil && e.Reason == "" {
		return "connect failed: " + e.Err.Error()
	}
	return "connect failed: " + e.Reason
}

func (e *ConnectFailure) Unwrap() error { return e.Err }

// TransportDisconnected describes the end of an established call. Err is nil
// for a normal hangup.
type TransportDisconnected struct {
	Err error
}

func (e *TransportDisconnected) Error() string {
	if e.Err == nil {
		return "call ended"
	}
	return "call dropped: " + e.Err.Error()
}

func (e *TransportDisconnected) Unwrap() error { return e.Err }
