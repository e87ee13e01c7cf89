package deriv

import (
	"errors"
	"fmt"
)

// Sentinel errors for the caller-visible failure modes of the client.
var (
	// ErrNotConnected is returned when a request is issued without a live,
	// authenticated connection.
	ErrNotConnected = errors.New("deriv: not connected")

	// ErrConnectionLost is returned for requests that were in flight when the
	// connection dropped. The connection itself is handled by reconnection.
	ErrConnectionLost = errors.New("deriv: connection lost")

	// ErrTimeout is returned when a request receives no matching response in
	// time. The connection is assumed otherwise healthy.
	ErrTimeout = errors.New("deriv: request timed out")

	// ErrRateLimited is returned when the outbound limiter cannot grant a
	// slot within the configured bounded wait.
	ErrRateLimited = errors.New("deriv: outbound rate limit exceeded")

	// ErrShutdown is returned once Close has been called.
	ErrShutdown = errors.New("deriv: client shut down")

	// ErrReconnectExhausted is the fatal error surfaced after the configured
	// number of reconnection attempts all failed.
	ErrReconnectExhausted = errors.New("deriv: reconnect attempts exhausted")
)

// AuthError reports a rejected credential. It is fatal and never retried,
// unlike transport-level failures.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("deriv: authentication rejected (%s): %s", e.Code, e.Message)
}

// APIError is an explicit error response from the venue for one request.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deriv: api error (%s): %s", e.Code, e.Message)
}
