package jsonrpc

import (
	"errors"
	"fmt"
)

// Standard errors returned by the codec.
var (
	// ErrMalformedMessage indicates a payload that is not valid JSON or
	// does not carry the JSON-RPC 2.0 version tag.
	ErrMalformedMessage = errors.New("malformed json-rpc message")

	// ErrMissingContentLength indicates a header block without a
	// Content-Length field.
	ErrMissingContentLength = errors.New("missing Content-Length header")
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeRequestCancelled is the LSP-defined code for a cancelled request.
	CodeRequestCancelled = -32800
)

// RPCError is the error object carried inside a Response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError creates an RPCError with the given code and message.
func NewError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}
