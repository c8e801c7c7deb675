package securenet

import (
	"errors"
	"fmt"

	"github.com/omniai-app/securekit/internal/certpin"
)

// TransportError means the server was never reliably reached: unreachable,
// timed out, or the handshake was rejected by the pinning validator.
type TransportError struct {
	Op        string
	RequestID string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HandshakeRejected reports whether the failure was a pinning rejection.
func (e *TransportError) HandshakeRejected() bool {
	return errors.Is(e.Err, certpin.ErrPinRejected)
}

// HTTPError means the server responded with a non-2xx status.
type HTTPError struct {
	Status    int
	RequestID string
	Body      []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: status %d", e.Status)
}

// DecodeError means a 2xx response carried a malformed body.
type DecodeError struct {
	RequestID string
	Err       error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode error: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry: transport failures and 5xx
// are retryable, 4xx generally is not.
func Retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status >= 500
	}
	return false
}
