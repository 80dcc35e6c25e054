// Package diag defines the single structured diagnostic produced when a
// program fails to compile.
package diag

import (
	"errors"
	"fmt"
)

// Kind classifies a compile failure.
type Kind string

const (
	MalformedProgram      Kind = "malformed-program"
	UnboundVariable       Kind = "unbound-variable"
	UnknownFunction       Kind = "unknown-function"
	ArityMismatch         Kind = "arity-mismatch"
	BreakOutsideLoop      Kind = "break-outside-loop"
	ContinueOutsideLoop   Kind = "continue-outside-loop"
	ReturnOutsideFunction Kind = "return-outside-function"
	DuplicateFunction     Kind = "duplicate-function"
)

// Error is a compile diagnostic anchored at a node path such as
// "/3/do/0/value/argl". The empty path means the program root.
type Error struct {
	Kind    Kind
	Path    string
	Message string
}

func (e *Error) Error() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, path, e.Message)
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, path string, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var d *Error
	if errors.As(err, &d) {
		return d.Kind
	}
	return ""
}
