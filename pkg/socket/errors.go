package socket

import (
	"errors"
	"fmt"
)

// Common error variables returned by the session layer
var (
	// ErrNotConnected is returned when a send is attempted while the
	// session has no open connection
	ErrNotConnected = errors.New("session not connected")

	// ErrClosed is returned for any operation attempted after Close
	ErrClosed = errors.New("session closed")

	// ErrTimeout is returned when no correlated response arrives
	// within the request deadline
	ErrTimeout = errors.New("request timed out")

	// ErrConnectionLost is used to fail all outstanding waits when the
	// underlying transport drops
	ErrConnectionLost = errors.New("connection lost")

	// ErrNoCredentials is returned when a signed operation is attempted
	// without configured API credentials
	ErrNoCredentials = errors.New("no API credentials configured")

	// ErrAuthenticationFailed is returned when the server rejects the
	// signed handshake (bad key, bad signature, stale nonce)
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// ServerError represents an explicit error envelope returned by the server
// in response to a request, including rejected auth and subscribe acks.
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// DeserializationError reports a payload whose shape did not match the
// expected type. It is scoped to a single response or push invocation and
// never tears down the session.
type DeserializationError struct {
	Subject string
	Err     error
}

// Error implements the error interface
func (e *DeserializationError) Error() string {
	return fmt.Sprintf("failed to decode %s payload: %v", e.Subject, e.Err)
}

// Unwrap returns the underlying decode error
func (e *DeserializationError) Unwrap() error {
	return e.Err
}
