package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the LSP layer.
var (
	// ErrMissingContentLength indicates a frame without a usable Content-Length header.
	ErrMissingContentLength = errors.New("missing Content-Length header")

	// ErrMalformedMessage indicates a frame whose body is not valid JSON.
	ErrMalformedMessage = errors.New("malformed lsp message")

	// ErrServerExited indicates the server's output stream has closed.
	ErrServerExited = errors.New("language server exited")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("lsp client closed")

	// ErrNoWorkspace indicates the workspace root cannot be expressed as a URI.
	ErrNoWorkspace = errors.New("invalid workspace path for LSP")

	// ErrInvalidResponse indicates a response that could not be decoded.
	ErrInvalidResponse = errors.New("invalid response from server")
)

// RPCError represents a JSON-RPC error from the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeRequestCancelled = -32800
	CodeContentModified  = -32801
)

// ServerError represents an error related to a server's lifecycle.
type ServerError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("server %s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServerError) Unwrap() error {
	return e.Err
}
