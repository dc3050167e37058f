// Package errs defines the error kinds surfaced by the coreperf client. Every
// error returned across a package boundary carries exactly one Kind at its
// outermost layer and may wrap errors of other kinds.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind uint8

const (
	// Configuration means an endpoint or credential needed to proceed is
	// missing or invalid.
	Configuration Kind = iota + 1

	// Network means a transport failure, a non-success HTTP status or a
	// malformed JSON response.
	Network

	// Encryption means bad key material, an unrecognized wire format, an
	// authentication tag mismatch or invalid padding.
	Encryption

	// Validation means a workload is missing or is not a supported binary.
	Validation

	// Experiment means a precondition violation, a packaging failure, a
	// terminal poll outcome or an unpack failure.
	Experiment
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "ConfigurationError"
	case Network:
		return "NetworkError"
	case Encryption:
		return "EncryptionError"
	case Validation:
		return "ValidationError"
	case Experiment:
		return "ExperimentError"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Error is a failure of a particular Kind.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string {
	return e.err.Error()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.err
}

// Cause returns the wrapped error for github.com/pkg/errors.Cause.
func (e *Error) Cause() error {
	return e.err
}

// New returns an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, err: errors.Errorf(format, args...)}
}

// Wrap annotates err with msg and classifies it as kind. It returns nil if err
// is nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: errors.Wrap(err, msg)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: errors.Wrapf(err, format, args...)}
}

// KindOf returns the outermost Kind in the chain of err, or zero if err
// carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether any error in the chain of err has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
