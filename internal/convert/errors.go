package convert

import (
	"errors"
	"fmt"

	"example.com/fitfaker/internal/fit"
)

// Kind classifies conversion failures.
type Kind string

const (
	KindInputNotFound   Kind = "input-not-found"
	KindInputUnreadable Kind = "input-unreadable"
	KindIntegrity       Kind = "integrity"
	KindMalformed       Kind = "malformed"
	KindOutputWrite     Kind = "output-write"
	KindCanceled        Kind = "canceled"
)

var (
	ErrInputNotFound   = errors.New("convert: input not found")
	ErrInputUnreadable = errors.New("convert: input unreadable")
	ErrIntegrity       = fit.ErrIntegrity
	ErrMalformed       = fit.ErrMalformed
	ErrOutputWrite     = fit.ErrOutputWrite
	// ErrRecoverableFraming never escapes Convert; it is exported so callers
	// driving fit.Reader directly can share the vocabulary.
	ErrRecoverableFraming = fit.ErrRecoverableFraming
)

var kindSentinels = map[Kind]error{
	KindInputNotFound:   ErrInputNotFound,
	KindInputUnreadable: ErrInputUnreadable,
	KindIntegrity:       ErrIntegrity,
	KindMalformed:       ErrMalformed,
	KindOutputWrite:     ErrOutputWrite,
}

// Error is returned by Convert for every failure.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind so errors.Is works even when
// the underlying cause is an os or codec error.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf returns the kind of a conversion error, or "" when err is not one.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// classify maps a codec error to its kind.
func classify(err error) Kind {
	switch {
	case errors.Is(err, fit.ErrOutputWrite):
		return KindOutputWrite
	case errors.Is(err, fit.ErrIntegrity):
		return KindIntegrity
	default:
		return KindMalformed
	}
}
