package sandbox

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a session.
type State int32

const (
	StateRunning State = iota
	StateAwaitingHostCall
	StateCompleted
	StateFailed
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateAwaitingHostCall:
		return "awaiting-host-call"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// errAbandoned is delivered to a script blocked in a host call when the
// host gives up on the session.
var errAbandoned = errors.New("session abandoned by host")

// Host is the script's view of the bridge while a session runs.
type Host interface {
	// Call suspends the script until the host answers a call of name.
	Call(name string, args []any, kwargs Kwargs) (any, error)

	// Await suspends the script on an asynchronous request.
	Await(name string, args []any, kwargs Kwargs) (any, error)

	// Print forwards printed text to the session's sink.
	Print(text string)
}

// ScriptFunc runs an already parsed script to completion. It must return
// promptly once ctx is done.
type ScriptFunc func(ctx context.Context, host Host) error

type event struct {
	suspension *Suspension
	done       bool
	err        error
}

type reply struct {
	value any
	err   error
}

// session drives a ScriptFunc on its own goroutine, handing control back
// and forth over channels so only one side runs at a time.
type session struct {
	req    StartRequest
	ctx    context.Context
	cancel context.CancelFunc

	events  chan event
	replies chan reply
	done    chan struct{}

	state atomic.Int32
	once  sync.Once

	// Owned by the script goroutine.
	calls int
	fatal *Error
}

// Run starts script as a cooperative session and returns its first
// Progress. Dialects call Run after parsing succeeds.
func Run(ctx context.Context, req StartRequest, script ScriptFunc) (Progress, error) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if req.Limits.MaxDuration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Limits.MaxDuration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	s := &session{
		req:     req,
		ctx:     runCtx,
		cancel:  cancel,
		events:  make(chan event, 1),
		replies: make(chan reply),
		done:    make(chan struct{}),
	}
	s.state.Store(int32(StateRunning))

	go s.run(script)
	return s.next(ctx)
}

func (s *session) run(script ScriptFunc) {
	defer close(s.done)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &Error{Kind: KindRuntime, Message: fmt.Sprintf("interpreter panic: %v\n%s", r, debug.Stack())}
			}
		}()
		err = script(s.ctx, s)
	}()

	s.events <- event{done: true, err: s.classify(err)}
}

// classify decides the final error of a finished script. Limits and
// interruptions observed by the driver take precedence over whatever the
// interpreter reported while unwinding.
func (s *session) classify(err error) error {
	if s.fatal != nil {
		return s.fatal
	}
	switch {
	case errors.Is(s.ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindLimit, Message: fmt.Sprintf("execution exceeded time limit of %s", s.req.Limits.MaxDuration), Err: context.DeadlineExceeded}
	case errors.Is(s.ctx.Err(), context.Canceled) && err != nil:
		return &Error{Kind: KindRuntime, Message: "execution cancelled", Err: context.Canceled}
	}
	if err == nil {
		return nil
	}
	return AsError(err)
}

// next waits for the script to suspend or finish.
func (s *session) next(ctx context.Context) (Progress, error) {
	select {
	case ev := <-s.events:
		if ev.suspension != nil {
			s.state.Store(int32(StateAwaitingHostCall))
			return ev.suspension, nil
		}
		<-s.done
		s.cancel()
		if ev.err != nil {
			s.state.Store(int32(StateFailed))
			return nil, ev.err
		}
		s.state.Store(int32(StateCompleted))
		return &Completion{}, nil
	case <-ctx.Done():
		s.abandon()
		return nil, ctx.Err()
	}
}

func (s *session) resume(ctx context.Context, r reply) (Progress, error) {
	s.state.Store(int32(StateRunning))
	s.replies <- r
	return s.next(ctx)
}

func (s *session) abandon() {
	s.once.Do(func() {
		awaiting := State(s.state.Load()) == StateAwaitingHostCall
		s.state.Store(int32(StateAbandoned))
		s.cancel()
		if awaiting {
			s.replies <- reply{err: errAbandoned}
		}
		for {
			select {
			case ev := <-s.events:
				if ev.suspension != nil {
					s.replies <- reply{err: errAbandoned}
					continue
				}
				<-s.done
				return
			case <-s.done:
				return
			}
		}
	})
}

func (s *session) currentState() State {
	return State(s.state.Load())
}

// Call implements Host.
func (s *session) Call(name string, args []any, kwargs Kwargs) (any, error) {
	return s.suspend(SuspendCall, name, args, kwargs)
}

// Await implements Host.
func (s *session) Await(name string, args []any, kwargs Kwargs) (any, error) {
	return s.suspend(SuspendFuture, name, args, kwargs)
}

// Print implements Host.
func (s *session) Print(text string) {
	s.req.print(text)
}

func (s *session) suspend(kind SuspensionKind, name string, args []any, kwargs Kwargs) (any, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.fatal != nil {
		return nil, s.fatal
	}
	s.calls++
	if limit := s.req.Limits.MaxCalls; limit > 0 && s.calls > limit {
		s.fatal = Errorf(KindLimit, "host call limit of %d exceeded", limit)
		return nil, s.fatal
	}

	s.events <- event{suspension: &Suspension{
		Kind:         kind,
		FunctionName: name,
		Args:         args,
		Kwargs:       kwargs,
		sess:         s,
	}}
	r := <-s.replies
	return r.value, r.err
}
