package client

import "errors"

// Standard errors returned by the client.
var (
	// ErrRequestNotFound indicates a response id with no pending request.
	ErrRequestNotFound = errors.New("request id not found")

	// ErrRequestCancelled indicates the pending request was cancelled
	// before its response arrived.
	ErrRequestCancelled = errors.New("request cancelled")

	// ErrMethodNotFound indicates no handler is registered for a method.
	// This is a protocol contract violation, distinct from an unknown
	// request id.
	ErrMethodNotFound = errors.New("method not found")
)
