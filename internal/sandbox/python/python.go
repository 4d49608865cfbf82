// Package python runs Python-flavoured scripts in a Starlark interpreter.
//
// Starlark has no classes, no imports and no access to the host beyond the
// predeclared names, which makes it a natural fit for untrusted snippets.
// load statements are rejected at parse time.
package python

import (
	"context"
	"errors"
	"fmt"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// Name is the dialect name.
const Name = "python"

const filename = "<turn>"

// Sandbox implements sandbox.Sandbox and sandbox.Checker.
type Sandbox struct {
	// Modules are extra predeclared names available to every script.
	// Callables and inputs shadow them.
	Modules starlark.StringDict
}

// New returns a Sandbox exposing the json and math modules.
func New() *Sandbox {
	return &Sandbox{
		Modules: starlark.StringDict{
			"json": json.Module,
			"math": math.Module,
		},
	}
}

// Name implements sandbox.Sandbox.
func (s *Sandbox) Name() string { return Name }

func fileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}
}

// Start implements sandbox.Sandbox.
func (s *Sandbox) Start(ctx context.Context, req sandbox.StartRequest) (sandbox.Progress, error) {
	f, err := parse(req.Code)
	if err != nil {
		return nil, err
	}

	if req.TypeCheck {
		if err := s.Check(req.Code, req.TypeCheckStubs, s.declared(req)); err != nil {
			return nil, err
		}
	}

	prog, err := starlark.FileProgram(f, s.isPredeclared(req))
	if err != nil {
		// Unresolved names would raise when reached; here they fail the
		// whole turn before the first statement runs.
		if uc := undefinedCallee(f, err); uc != nil {
			return nil, uc
		}
		return nil, resolveError(err, sandbox.KindRuntime, 0)
	}

	return sandbox.Run(ctx, req, func(ctx context.Context, host sandbox.Host) error {
		return s.exec(ctx, req, prog, host)
	})
}

func (s *Sandbox) exec(ctx context.Context, req sandbox.StartRequest, prog *starlark.Program, host sandbox.Host) error {
	thread := &starlark.Thread{
		Name: "turn",
		Print: func(_ *starlark.Thread, msg string) {
			host.Print(msg + "\n")
		},
		Load: func(*starlark.Thread, string) (starlark.StringDict, error) {
			return nil, errors.New("load is not permitted")
		},
	}
	if req.Limits.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(req.Limits.MaxSteps)
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(ctx.Err().Error())
	})
	defer stop()

	predeclared, err := s.predeclared(req, host)
	if err != nil {
		return err
	}

	if _, err := prog.Init(thread, predeclared); err != nil {
		if req.Limits.MaxSteps > 0 && thread.ExecutionSteps() >= req.Limits.MaxSteps {
			return &sandbox.Error{Kind: sandbox.KindLimit, Message: "execution step limit exceeded", Err: err}
		}
		return evalError(err)
	}
	return nil
}

func (s *Sandbox) declared(req sandbox.StartRequest) []string {
	names := make([]string, 0, len(req.Inputs)+len(req.Callables)+len(s.Modules))
	for name := range s.Modules {
		names = append(names, name)
	}
	names = append(names, req.Inputs.Names()...)
	return append(names, req.Callables...)
}

func (s *Sandbox) isPredeclared(req sandbox.StartRequest) func(string) bool {
	set := make(map[string]bool)
	for _, name := range s.declared(req) {
		set[name] = true
	}
	return func(name string) bool { return set[name] }
}

func (s *Sandbox) predeclared(req sandbox.StartRequest, host sandbox.Host) (starlark.StringDict, error) {
	dict := make(starlark.StringDict, len(s.Modules)+len(req.Inputs)+len(req.Callables))
	for name, mod := range s.Modules {
		dict[name] = mod
	}
	for _, in := range req.Inputs {
		v, err := toValue(in.Value)
		if err != nil {
			return nil, sandbox.Errorf(sandbox.KindRuntime, "input %q: %v", in.Name, err)
		}
		dict[in.Name] = v
	}
	for _, name := range req.Callables {
		dict[name] = starlark.NewBuiltin(name, hostCall(host))
	}
	return dict, nil
}

// hostCall adapts a host callable into a Starlark builtin.
func hostCall(host sandbox.Host) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		goArgs := make([]any, len(args))
		for i, a := range args {
			v, err := fromValue(a)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %v", b.Name(), i+1, err)
			}
			goArgs[i] = v
		}
		var goKwargs sandbox.Kwargs
		for _, kv := range kwargs {
			name, _ := starlark.AsString(kv[0])
			v, err := fromValue(kv[1])
			if err != nil {
				return nil, fmt.Errorf("%s: argument %s: %v", b.Name(), name, err)
			}
			goKwargs = append(goKwargs, sandbox.Binding{Name: name, Value: v})
		}

		result, err := host.Call(b.Name(), goArgs, goKwargs)
		if err != nil {
			return nil, err
		}
		return toValue(result)
	}
}

func parse(code string) (*syntax.File, error) {
	f, err := fileOptions().Parse(filename, code, 0)
	if err != nil {
		return nil, syntaxError(err, 0)
	}
	for _, stmt := range f.Stmts {
		if load, ok := stmt.(*syntax.LoadStmt); ok {
			pos, _ := load.Span()
			return nil, &sandbox.Error{
				Kind:    sandbox.KindSyntax,
				Message: "load statements are not permitted",
				Line:    int(pos.Line),
				Column:  int(pos.Col),
			}
		}
	}
	return f, nil
}

func syntaxError(err error, lineOffset int) *sandbox.Error {
	var se syntax.Error
	if errors.As(err, &se) {
		return &sandbox.Error{
			Kind:    sandbox.KindSyntax,
			Message: se.Msg,
			Line:    int(se.Pos.Line) - lineOffset,
			Column:  int(se.Pos.Col),
			Err:     err,
		}
	}
	return &sandbox.Error{Kind: sandbox.KindSyntax, Message: err.Error(), Err: err}
}

func evalError(err error) *sandbox.Error {
	var ee *starlark.EvalError
	if !errors.As(err, &ee) {
		return sandbox.AsError(err)
	}
	out := &sandbox.Error{Kind: sandbox.KindRuntime, Message: ee.Msg, Err: err}
	if len(ee.CallStack) > 0 {
		pos := ee.CallStack.At(0).Pos
		out.Line = int(pos.Line)
		out.Column = int(pos.Col)
	}
	// Host failures keep their own classification.
	var inner *sandbox.Error
	if errors.As(ee.Unwrap(), &inner) {
		return inner
	}
	return out
}
