package crosspost

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPostNotFound is returned when a post ID does not resolve to a post.
	ErrPostNotFound = errors.New("post not found")
	// ErrAlreadyPosted is returned when the idempotency marker is already set.
	ErrAlreadyPosted = errors.New("post already cross-posted")
)

// FailureMessage is the operator-facing text for remote and protocol failures.
const FailureMessage = "Failed to post to Bluesky"

// MissingCredentialsError is returned when the settings record lacks credentials.
type MissingCredentialsError struct {
	Provider string
	Fields   []string
}

func (e MissingCredentialsError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Fields, ", "))
}

// ValidationError captures provider-specific validation issues.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Provider, e.Reason)
}

// RemoteError wraps a transport failure talking to the remote network.
type RemoteError struct {
	Provider string
	Op       string
	Err      error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ProtocolError is returned when the remote answered without a usable URL.
type ProtocolError struct {
	Provider   string
	StatusCode int
	Reason     string
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s protocol error (status %d): %s", e.Provider, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s protocol error: %s", e.Provider, e.Reason)
}

// IsPostFailure reports whether err is a RemoteError or ProtocolError.
func IsPostFailure(err error) bool {
	var remote *RemoteError
	var proto *ProtocolError
	return errors.As(err, &remote) || errors.As(err, &proto)
}
