// Package sandbox defines the contract between the execution bridge and a
// sandboxed interpreter session.
//
// A session is cooperative: Start runs the script until it either finishes
// or needs something from the host. In the latter case it returns a
// Suspension describing the request; the host services it and calls Resume
// with the result. The script never runs while the host is working and the
// host never runs while the script is.
package sandbox

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrSuspensionConsumed is returned when Resume or Abandon is called on a
// suspension that has already been resumed or abandoned.
var ErrSuspensionConsumed = errors.New("sandbox: suspension already consumed")

// Sandbox starts interpreter sessions for one scripting dialect.
//
// Contract:
//   - Concurrency: Start may be called concurrently; sessions are independent.
//   - Errors: parse and type errors are returned by Start before any host
//     callable is invoked. All script failures are *Error values.
//   - Context: ctx governs the whole session, not just the Start call.
type Sandbox interface {
	// Name returns the dialect name, e.g. "python".
	Name() string

	// Start parses, optionally type checks, and begins executing req.Code.
	Start(ctx context.Context, req StartRequest) (Progress, error)
}

// Checker is implemented by dialects that can validate code statically
// without running it.
type Checker interface {
	Check(code, stubs string, declared []string) error
}

// Limits bounds a single session. Zero values mean unlimited.
type Limits struct {
	// MaxDuration is the wall-clock budget for the whole session.
	MaxDuration time.Duration `yaml:"max_duration" json:"max_duration,omitempty"`

	// MaxSteps bounds interpreter steps on dialects that count them.
	MaxSteps uint64 `yaml:"max_steps" json:"max_steps,omitempty"`

	// MaxCalls bounds the number of host calls the script may make.
	MaxCalls int `yaml:"max_calls" json:"max_calls,omitempty"`

	// MaxAllocs bounds object allocations on dialects that count them.
	// It is the closest portable stand-in for a memory ceiling.
	MaxAllocs int64 `yaml:"max_allocs" json:"max_allocs,omitempty"`
}

// StartRequest configures one session.
type StartRequest struct {
	// Code is the script source.
	Code string

	// Inputs are the variables bound before the first statement runs.
	Inputs Bindings

	// Callables are the names the script may call on the host.
	Callables []string

	Limits Limits

	// Print receives every chunk of text the script prints, in order.
	Print func(string)

	// TypeCheck enables static validation before execution.
	TypeCheck bool

	// TypeCheckStubs are prepended for validation only. They are never run.
	TypeCheckStubs string
}

func (r StartRequest) print(text string) {
	if r.Print != nil {
		r.Print(text)
	}
}

// Progress is either a *Suspension or a *Completion.
type Progress interface {
	progress()
}

// SuspensionKind distinguishes host requests.
type SuspensionKind int

const (
	// SuspendCall is a synchronous call of a named host callable.
	SuspendCall SuspensionKind = iota + 1

	// SuspendFuture is an asynchronous request the script will await later.
	SuspendFuture
)

func (k SuspensionKind) String() string {
	switch k {
	case SuspendCall:
		return "call"
	case SuspendFuture:
		return "future"
	default:
		return "unknown"
	}
}

// Completion reports that the script ran to the end.
type Completion struct{}

func (*Completion) progress() {}

// Suspension is a paused session waiting on the host.
type Suspension struct {
	Kind         SuspensionKind
	FunctionName string
	Args         []any
	Kwargs       Kwargs

	sess     *session
	consumed atomic.Bool
}

func (*Suspension) progress() {}

// Resume hands value back to the script and runs it to the next
// suspension or to completion.
func (s *Suspension) Resume(ctx context.Context, value any) (Progress, error) {
	if s.sess == nil || !s.consumed.CompareAndSwap(false, true) {
		return nil, ErrSuspensionConsumed
	}
	return s.sess.resume(ctx, reply{value: value})
}

// Abandon discards the session. The script is interrupted and its goroutine
// drained before Abandon returns.
func (s *Suspension) Abandon() error {
	if s.sess == nil || !s.consumed.CompareAndSwap(false, true) {
		return ErrSuspensionConsumed
	}
	s.sess.abandon()
	return nil
}

// State returns the current state of the session behind s.
func (s *Suspension) State() State {
	if s.sess == nil {
		return StateAbandoned
	}
	return s.sess.currentState()
}
