package ledger

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures by how callers should react.
type ErrorKind int

const (
	// KindTransient covers connectivity loss, timeouts, throttling and peer
	// overload. The request may be retried.
	KindTransient ErrorKind = iota
	// KindNotFound means the requested object does not exist on the peer.
	KindNotFound
	// KindRejected means the peer refused the request as invalid.
	KindRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is a classified gateway failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Code string // network result code, when the peer supplied one
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsTransient reports whether err is a retryable gateway failure. Context
// cancellation is never transient.
func IsTransient(err error) bool {
	return hasKind(err, KindTransient)
}

func IsNotFound(err error) bool {
	return hasKind(err, KindNotFound)
}

func IsRejected(err error) bool {
	return hasKind(err, KindRejected)
}

func hasKind(err error, kind ErrorKind) bool {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind == kind
	}
	return false
}
