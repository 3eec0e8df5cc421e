package classifier

import (
	"errors"
	"fmt"
)

// Kind separates caller mistakes from provider failures so the HTTP layer
// can pick a status and the hybrid analyzer can decide to fall back.
type Kind string

const (
	KindValidation Kind = "validation"
	KindUpstream   Kind = "upstream"
	KindSchema     Kind = "schema"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("classify %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of a classifier error, or "" for anything else.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
