package musetalk

import "fmt"

// ServiceUnavailableError means the liveness probe failed; nothing large
// was submitted.
type ServiceUnavailableError struct {
	URL string
	Err error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("inference service unavailable at %s: %v", e.URL, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// TransportError is a connection-level failure: refused, timed out, or a
// transient 5xx. Retried with backoff up to the configured bound.
type TransportError struct {
	Op     string
	Status int // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RequestRejectedError is a well-formed 4xx from the service. Never
// retried: the request itself is wrong.
type RequestRejectedError struct {
	Status int
	Body   string
}

func (e *RequestRejectedError) Error() string {
	return fmt.Sprintf("inference request rejected with status %d: %s", e.Status, e.Body)
}

// IncompleteSequenceError means fewer frames arrived than the service's
// declared total within the grace window.
type IncompleteSequenceError struct {
	Expected int
	Received int
}

func (e *IncompleteSequenceError) Error() string {
	return fmt.Sprintf("incomplete frame sequence: received %d of %d", e.Received, e.Expected)
}
