package common

import (
	"errors"
	"fmt"
)

// FailureKind classifies the errors that cross component boundaries. The kind
// decides what happens to the connection or the data that caused them.
type FailureKind uint32

const (
	// ProtocolViolation covers malformed frames, bad checksums, oversized
	// payloads, out-of-order handshakes and self or duplicate nonces. The
	// connection is closed immediately.
	ProtocolViolation FailureKind = iota
	// ValidationFailure covers shares with a bad merkle branch, bad proof of
	// work or bad timestamp. The share is dropped, the connection survives.
	ValidationFailure
	// ConnectivityFailure covers refused or timed out dials and resets. It is
	// recorded against the address book entry and retried with backoff.
	ConnectivityFailure
	// ResourceExhaustion is reported when a connection cap is reached.
	ResourceExhaustion
)

func (k FailureKind) String() string {
	switch k {
	case ProtocolViolation:
		return "ProtocolViolation"
	case ValidationFailure:
		return "ValidationFailure"
	case ConnectivityFailure:
		return "ConnectivityFailure"
	case ResourceExhaustion:
		return "ResourceExhaustion"
	default:
		return "Unknown"
	}
}

// Failure is an error tagged with a FailureKind.
type Failure struct {
	Kind  FailureKind
	Cause error
}

// NewFailure wraps cause with the given kind.
func NewFailure(kind FailureKind, cause error) *Failure {
	return &Failure{Kind: kind, Cause: cause}
}

// Failuref formats a new Failure of the given kind.
func Failuref(kind FailureKind, format string, args ...interface{}) *Failure {
	return &Failure{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// Error ...
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Cause)
}

// Unwrap ...
func (f *Failure) Unwrap() error {
	return f.Cause
}

// IsFailure reports whether err, or any error it wraps, is a Failure of kind k.
func IsFailure(err error, k FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == k
}
