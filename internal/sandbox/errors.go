package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched by *Error through errors.Is.
var (
	ErrSyntax    = errors.New("syntax error")
	ErrTypeCheck = errors.New("type check error")
	ErrRuntime   = errors.New("runtime error")
	ErrLimit     = errors.New("resource limit exceeded")

	ErrUnknownCallable = errors.New("unknown callable")
)

// ErrorKind classifies a script failure.
type ErrorKind int

const (
	KindSyntax ErrorKind = iota + 1
	KindTypeCheck
	KindRuntime
	KindLimit
	// KindUnknownCallable is a call of a name bound to nothing the script
	// can see: not an input, a callable or a dialect builtin.
	KindUnknownCallable
)

func (k ErrorKind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindTypeCheck:
		return "typecheck"
	case KindRuntime:
		return "runtime"
	case KindLimit:
		return "limit"
	case KindUnknownCallable:
		return "unknown callable"
	default:
		return "unknown"
	}
}

// Error is a failure reported by a sandbox session.
type Error struct {
	Kind    ErrorKind
	Message string

	// Line and Column are 1-based; zero when unknown.
	Line   int
	Column int

	// Name is the called name for KindUnknownCallable.
	Name string

	// Err is the interpreter's own error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s error at line %d, column %d: %s", e.Kind, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrSyntax:
		return e.Kind == KindSyntax
	case ErrTypeCheck:
		return e.Kind == KindTypeCheck
	case ErrRuntime:
		return e.Kind == KindRuntime
	case ErrLimit:
		return e.Kind == KindLimit
	case ErrUnknownCallable:
		return e.Kind == KindUnknownCallable
	}
	return false
}

// Errorf builds an *Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// UnknownCallable builds the error for a call of name that no binding
// satisfies. line and column locate the call; zero when unknown.
func UnknownCallable(name string, line, column int, err error) *Error {
	return &Error{
		Kind:    KindUnknownCallable,
		Message: name + " is not defined",
		Name:    name,
		Line:    line,
		Column:  column,
		Err:     err,
	}
}

// IsCallSite reports whether the text of code from byte offset end, past
// spaces and tabs, opens an argument list. end is just past an identifier.
func IsCallSite(code string, end int) bool {
	if end < 0 || end > len(code) {
		return false
	}
	return strings.HasPrefix(strings.TrimLeft(code[end:], " \t"), "(")
}

// AsError wraps err as a runtime *Error unless it already is one.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: KindRuntime, Message: err.Error(), Err: err}
}
