package pinot

import "fmt"

// ValidationError reports a malformed scan request at build time. It marks a
// caller bug and is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid scan request: %s", e.Message)
}

// TransportError reports a failure of the streaming call itself: dial
// failures, stream resets, deadline expiry. An external layer may retry by
// re-submitting a fresh scan.
type TransportError struct {
	Address string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pinot server %s: %v", e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a malformed response payload. It is not retryable and
// usually signals a server version mismatch.
type DecodeError struct {
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to decode server response: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("failed to decode server response: %s", e.Message)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ProjectionError reports a column the query plan expected that the decoded
// table does not carry.
type ProjectionError struct {
	Column string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("column %q missing from server data table", e.Column)
}
