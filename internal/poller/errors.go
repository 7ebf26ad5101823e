package poller

import "fmt"

// TransportError reports that the status resource could not be reached or
// answered with a non-2xx status.
type TransportError struct {
	URL string

	// StatusCode is zero when no response was received.
	StatusCode int

	// Message is a short description, or the remote's error field if it
	// sent one.
	Message string

	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("transport error for %s: status %d: %s", e.URL, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport error for %s: status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("transport error for %s: %s: %v", e.URL, e.Message, e.Err)
	default:
		return fmt.Sprintf("transport error for %s: %s", e.URL, e.Message)
	}
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response body that does not match the expected
// shape.
type ProtocolError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error for %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error for %s: %s", e.URL, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}
