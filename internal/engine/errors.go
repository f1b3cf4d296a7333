package engine

import "fmt"

// ProtocolError reports a server response the transfer cannot proceed from:
// an unexpected status code or a Content-Range that contradicts what was
// requested. The local file is left exactly as it was.
type ProtocolError struct {
	URL    string
	Status int
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("server %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("server %s: unexpected status %d", e.URL, e.Status)
}

// TransportError wraps a network failure while the request or body transfer
// was in flight. Bytes written before the failure stay on disk.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transfer from %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
