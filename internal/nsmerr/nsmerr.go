// Package nsmerr defines the error kinds shared across the broker and its
// participants. Errors are distinguished by kind, not by Go type identity,
// so callers compare with errors.Is against the exported sentinels.
package nsmerr

import (
	"errors"
	"fmt"
)

// Protocol errors: a frame was malformed or violated the handler's
// precondition for the header it carried.
var ErrProtocol = errors.New("nsm: protocol error")

// Transport error kinds. A heartbeat probe folds any of these into its
// tracker's fail count; a request handler closes the offending session.
var (
	ErrUnreachable  = errors.New("nsm: unreachable")
	ErrTimedOut     = errors.New("nsm: timed out")
	ErrClosed       = errors.New("nsm: closed")
	ErrTLSHandshake = errors.New("nsm: tls handshake failed")
)

// ErrNotFound is returned when a CLAIM exhausts its retry window without a
// matching publication.
var ErrNotFound = errors.New("nsm: no matching publication")

// ErrConfig marks a fatal startup configuration error (e.g. --tls without
// CERT_PATH/KEY_PATH).
var ErrConfig = errors.New("nsm: configuration error")

// Protocolf wraps an underlying cause as a protocol error.
func Protocolf(format string, args ...any) error {
	return &kindError{kind: ErrProtocol, cause: fmt.Errorf(format, args...)}
}

// Transport wraps an underlying cause with one of the transport sentinels.
func Transport(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return &kindError{kind: kind, cause: cause}
}

type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error { return []error{e.kind, e.cause} }
