package api

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. ErrAlreadyFollowed matches a ServerRejectedError through
// errors.Is, so callers never need to inspect the server's wording.
var (
	ErrAlreadyFollowed = errors.New("topic is already followed")
	ErrNoImage         = errors.New("topic has no image")
)

// Message prefixes the server uses when a follow request is a duplicate.
var alreadyFollowedPrefixes = []string{"已经关注", "already followed"}

// NetworkUnavailableError means no HTTP status was obtained: the connection
// failed, timed out, or broke while the body was being read.
type NetworkUnavailableError struct {
	Err error
}

func (e *NetworkUnavailableError) Error() string {
	return "network unavailable: " + e.Err.Error()
}

func (e *NetworkUnavailableError) Unwrap() error { return e.Err }

// TransportError is a response with a status other than 200. Message is the
// HTTP reason phrase.
type TransportError struct {
	Status  int
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.Status, e.Message)
}

// MalformedResponseError means the body is not a usable envelope or its
// payload does not have the expected shape.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return "malformed response: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ServerRejectedError is an envelope with a non-zero code. Message is the
// server's msg field, untouched.
type ServerRejectedError struct {
	Code    int64
	Message string
}

func (e *ServerRejectedError) Error() string {
	return fmt.Sprintf("server rejected request (code %d): %s", e.Code, e.Message)
}

func (e *ServerRejectedError) Is(target error) bool {
	if target != ErrAlreadyFollowed {
		return false
	}
	for _, p := range alreadyFollowedPrefixes {
		if strings.HasPrefix(e.Message, p) {
			return true
		}
	}
	return false
}
