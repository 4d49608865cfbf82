package bridge

import (
	"errors"
	"fmt"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// Sentinel errors for error classification. Every typed error below matches
// exactly one of these through errors.Is, except RuntimeError which also
// matches ErrLimitExceeded when a resource limit was hit.
var (
	ErrConfiguration         = errors.New("configuration error")
	ErrSyntax                = errors.New("syntax error")
	ErrTypeCheck             = errors.New("type check error")
	ErrUnknownCallable       = errors.New("unknown callable")
	ErrToolExecution         = errors.New("tool execution error")
	ErrUnsupportedSuspension = errors.New("unsupported suspension")
	ErrRuntime               = errors.New("runtime error")
	ErrLimitExceeded         = errors.New("limit exceeded")
	ErrFinalOutput           = errors.New("invalid final output")
)

// SyntaxError reports code that could not be parsed. No tool was called.
type SyntaxError struct {
	Cause *sandbox.Error
}

func (e *SyntaxError) Error() string        { return e.Cause.Error() }
func (e *SyntaxError) Unwrap() error        { return e.Cause }
func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// TypeCheckError reports code rejected by static validation. No tool was
// called.
type TypeCheckError struct {
	Cause *sandbox.Error
}

func (e *TypeCheckError) Error() string        { return e.Cause.Error() }
func (e *TypeCheckError) Unwrap() error        { return e.Cause }
func (e *TypeCheckError) Is(target error) bool { return target == ErrTypeCheck }

// RuntimeError reports a failure raised while the script was running,
// including resource limits.
type RuntimeError struct {
	Cause *sandbox.Error
}

func (e *RuntimeError) Error() string { return e.Cause.Error() }
func (e *RuntimeError) Unwrap() error { return e.Cause }

func (e *RuntimeError) Is(target error) bool {
	switch target {
	case ErrRuntime:
		return true
	case ErrLimitExceeded:
		return e.Cause.Kind == sandbox.KindLimit
	}
	return false
}

// LimitExceeded reports whether the failure was a resource limit.
func (e *RuntimeError) LimitExceeded() bool {
	return e.Cause.Kind == sandbox.KindLimit
}

// UnknownCallableError reports a call of a name missing from the turn's
// tool registry. Cause is set when the dialect caught the call itself,
// before or instead of suspending.
type UnknownCallableError struct {
	Name  string
	Cause *sandbox.Error
}

func (e *UnknownCallableError) Error() string {
	if e.Cause != nil && e.Cause.Line > 0 {
		return fmt.Sprintf("unknown function: %s (line %d)", e.Name, e.Cause.Line)
	}
	return fmt.Sprintf("unknown function: %s", e.Name)
}

func (e *UnknownCallableError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

func (e *UnknownCallableError) Is(target error) bool { return target == ErrUnknownCallable }

// ToolExecutionError reports a host tool that returned an error or
// panicked. The session is never resumed after one.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error        { return e.Err }
func (e *ToolExecutionError) Is(target error) bool { return target == ErrToolExecution }

// UnsupportedSuspensionError reports a suspension other than a plain call,
// such as an awaited future.
type UnsupportedSuspensionError struct {
	Kind sandbox.SuspensionKind
	Name string
}

func (e *UnsupportedSuspensionError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unsupported %s suspension of %s: async futures not supported", e.Kind, e.Name)
	}
	return fmt.Sprintf("unsupported %s suspension: async futures not supported", e.Kind)
}

func (e *UnsupportedSuspensionError) Is(target error) bool {
	return target == ErrUnsupportedSuspension
}

// FinalOutputError reports submit arguments that do not fit the output
// schema.
type FinalOutputError struct {
	Message string
}

func (e *FinalOutputError) Error() string        { return "submit: " + e.Message }
func (e *FinalOutputError) Is(target error) bool { return target == ErrFinalOutput }

// fromSandbox maps a sandbox failure onto the bridge taxonomy.
func fromSandbox(err error) error {
	se := sandbox.AsError(err)
	switch se.Kind {
	case sandbox.KindSyntax:
		return &SyntaxError{Cause: se}
	case sandbox.KindTypeCheck:
		return &TypeCheckError{Cause: se}
	case sandbox.KindUnknownCallable:
		return &UnknownCallableError{Name: se.Name, Cause: se}
	default:
		return &RuntimeError{Cause: se}
	}
}

// Classify returns a short label for the class of err, or "error" when err
// is not a bridge error.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrToolExecution):
		return "tool error"
	case errors.Is(err, ErrLimitExceeded):
		return "limit exceeded"
	case errors.Is(err, ErrSyntax):
		return "syntax error"
	case errors.Is(err, ErrTypeCheck):
		return "type check error"
	case errors.Is(err, ErrUnknownCallable):
		return "unknown callable"
	case errors.Is(err, ErrUnsupportedSuspension):
		return "unsupported suspension"
	case errors.Is(err, ErrFinalOutput):
		return "final output error"
	case errors.Is(err, ErrRuntime):
		return "runtime error"
	case errors.Is(err, ErrConfiguration):
		return "configuration error"
	}
	return "error"
}
