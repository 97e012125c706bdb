package render

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure. Retry and HTTP mapping decisions are
// made from the kind, never from error message text.
type Kind int

// Failure kinds, ordered from caller mistakes to infrastructure faults.
const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindConcurrencyLimit
	KindLaunch
	KindTimeout
	KindProtocol
	KindExtraction
)

// String returns the stable name used in logs and API responses.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConcurrencyLimit:
		return "concurrency_limit"
	case KindLaunch:
		return "launch_error"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol_error"
	case KindExtraction:
		return "extraction_error"
	default:
		return "unknown"
	}
}

// Transient reports whether a failure of this kind is worth retrying on a
// fresh instance. Timeouts and lost connections are presumed to have poisoned
// the instance; everything else is either a caller problem or a content-shape
// problem that a retry cannot fix.
func (k Kind) Transient() bool {
	return k == KindTimeout || k == KindProtocol
}

// Error is the typed failure returned by the executor and the pool.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr attaches a cause to a kinded error.
func WrapErr(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind from an error chain. Errors that carry no
// kind report KindUnknown.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}
