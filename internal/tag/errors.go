package tag

import "fmt"

// TransportError reports a failure in the underlying Socket (connection reset,
// TLS handshake failure, read/write timeout). The Link that produced it is
// terminated; any Tag that had not yet committed is handed back to the Peer
// for retry on a different Link.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports malformed wire data that the Link's read state
// machine could not parse (bad chunk header, header section too large, no
// matching write for an incoming response).
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Reason }

// ResourceError reports local resource exhaustion: admission caps, buffer
// overrun, allocation ceiling exceeded.
type ResourceError struct {
	Reason string
}

func (e *ResourceError) Error() string { return "resource: " + e.Reason }

// LogicalError reports a caller misuse: submitting to a closed Peer,
// resolving a Tag twice, reading after Done.
type LogicalError struct {
	Reason string
}

func (e *LogicalError) Error() string { return "logical: " + e.Reason }

// HTTPStatusError wraps a non-2xx HTTP response that the caller asked to
// have surfaced as an error (RequestOptions.HTTPExceptions).
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status: %d %s", e.StatusCode, e.Status)
}

var (
	// ErrAllocCapExceeded is returned when a response's declared
	// Content-Length exceeds RequestOptions.ContentLengthMaxAlloc.
	ErrAllocCapExceeded = &ResourceError{Reason: "content length exceeds allocation cap"}

	// ErrBufferOverrun is returned when the read state machine receives more
	// bytes than the reserved buffer can hold and ContiguousContent forbids
	// reallocation.
	ErrBufferOverrun = &ResourceError{Reason: "buffer overrun"}

	// ErrLinksExhausted is returned by Peer.Submit when every Link is at
	// TagMax, the Peer is at LinkMax, and no queue slot is available.
	ErrLinksExhausted = &ResourceError{Reason: "links exhausted"}

	// ErrClosed is returned by Submit on a Peer, Link, or Dispatcher that has
	// been closed.
	ErrClosed = &LogicalError{Reason: "closed"}

	// ErrCanceled is returned to a Future whose Tag was explicitly canceled
	// before it committed.
	ErrCanceled = &LogicalError{Reason: "canceled"}

	// ErrAbandoned is returned to a Future whose Tag was abandoned because
	// its Link failed after the Tag had already committed.
	ErrAbandoned = &TransportError{Op: "link", Err: fmt.Errorf("abandoned")}
)
