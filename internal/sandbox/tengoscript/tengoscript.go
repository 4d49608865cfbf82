// Package tengoscript runs scripts written in the Tengo language.
//
// Module imports are disabled. Host callables are global functions;
// keyword arguments are passed by ending the argument list with kw({...}).
package tengoscript

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/parser"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// Name is the dialect name.
const Name = "tengo"

// DefaultMaxAllocs is used when the request sets no allocation limit.
const DefaultMaxAllocs = 1000000

// Sandbox implements sandbox.Sandbox.
type Sandbox struct {
	// MaxAllocs is the fallback allocation limit. Negative means unlimited.
	MaxAllocs int64
}

// New returns a Sandbox with the default allocation limit.
func New() *Sandbox {
	return &Sandbox{MaxAllocs: DefaultMaxAllocs}
}

// Name implements sandbox.Sandbox.
func (s *Sandbox) Name() string { return Name }

// Start implements sandbox.Sandbox.
func (s *Sandbox) Start(ctx context.Context, req sandbox.StartRequest) (sandbox.Progress, error) {
	if req.TypeCheck {
		return nil, sandbox.Errorf(sandbox.KindTypeCheck, "type checking is not supported by the %s dialect", Name)
	}

	// Callables and print are bound per session, so compiling happens
	// against a relay that forwards to whichever host is running.
	relay := &hostRelay{}
	script := tengo.NewScript([]byte(req.Code))
	script.SetImports(nil)

	maxAllocs := s.MaxAllocs
	if req.Limits.MaxAllocs > 0 {
		maxAllocs = req.Limits.MaxAllocs
	}
	script.SetMaxAllocs(maxAllocs)

	for _, in := range req.Inputs {
		obj, err := toObject(in.Value)
		if err != nil {
			return nil, sandbox.Errorf(sandbox.KindRuntime, "input %q: %v", in.Name, err)
		}
		if err := script.Add(in.Name, obj); err != nil {
			return nil, sandbox.Errorf(sandbox.KindRuntime, "input %q: %v", in.Name, err)
		}
	}
	addBuiltins(script, relay)
	for _, name := range req.Callables {
		_ = script.Add(name, relay.callable(name))
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, compileError(err, req.Code)
	}

	return sandbox.Run(ctx, req, func(ctx context.Context, host sandbox.Host) error {
		relay.host = host
		if err := compiled.RunContext(ctx); err != nil {
			return runtimeError(err, maxAllocs)
		}
		return nil
	})
}

// hostRelay lets functions bound at compile time reach the session host.
type hostRelay struct {
	host sandbox.Host
}

func (r *hostRelay) callable(name string) *tengo.UserFunction {
	return &tengo.UserFunction{
		Name: name,
		Value: func(args ...tengo.Object) (tengo.Object, error) {
			var kwargs sandbox.Kwargs
			if n := len(args); n > 0 {
				if kw, ok := args[n-1].(*keywords); ok {
					kwargs = kw.values
					args = args[:n-1]
				}
			}
			goArgs := make([]any, len(args))
			for i, a := range args {
				goArgs[i] = fromObject(a)
			}

			result, err := r.host.Call(name, goArgs, kwargs)
			if err != nil {
				return nil, err
			}
			return toObject(result)
		},
	}
}

func (r *hostRelay) print(text string) {
	if r.host != nil {
		r.host.Print(text)
	}
}

// keywords marks the trailing kw({...}) argument of a host call.
type keywords struct {
	tengo.ObjectImpl
	values sandbox.Kwargs
}

func (k *keywords) TypeName() string { return "keywords" }

func (k *keywords) String() string { return "<keywords>" }

var (
	syntaxPos  = regexp.MustCompile(`\(main\):(\d+):(\d+)`)
	runtimePos = regexp.MustCompile(`at \(main\):(\d+):(\d+)`)
)

func compileError(err error, code string) error {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return &sandbox.Error{
			Kind:    sandbox.KindSyntax,
			Message: list[0].Msg,
			Line:    list[0].Pos.Line,
			Column:  list[0].Pos.Column,
			Err:     err,
		}
	}

	var ce *tengo.CompilerError
	if errors.As(err, &ce) {
		// Unresolved references surface here, before anything runs.
		line, col := position(syntaxPos, err.Error())
		if id, ok := ce.Node.(*parser.Ident); ok && strings.HasPrefix(ce.Err.Error(), "unresolved reference") {
			if end := ce.FileSet.Position(id.End()); sandbox.IsCallSite(code, end.Offset) {
				return sandbox.UnknownCallable(id.Name, line, col, err)
			}
		}
		return &sandbox.Error{Kind: sandbox.KindRuntime, Message: ce.Err.Error(), Line: line, Column: col, Err: err}
	}
	return &sandbox.Error{Kind: sandbox.KindSyntax, Message: err.Error(), Err: err}
}

func runtimeError(err error, maxAllocs int64) error {
	var inner *sandbox.Error
	if errors.As(err, &inner) {
		return inner
	}
	if errors.Is(err, tengo.ErrObjectAllocLimit) {
		return &sandbox.Error{
			Kind:    sandbox.KindLimit,
			Message: "object allocation limit of " + strconv.FormatInt(maxAllocs, 10) + " exceeded",
			Err:     err,
		}
	}
	msg := strings.TrimPrefix(err.Error(), "Runtime Error: ")
	if i := strings.Index(msg, "\n\tat "); i >= 0 {
		msg = msg[:i]
	}
	out := &sandbox.Error{Kind: sandbox.KindRuntime, Message: msg, Err: err}
	out.Line, out.Column = position(runtimePos, err.Error())
	return out
}

func position(re *regexp.Regexp, msg string) (int, int) {
	m := re.FindStringSubmatch(msg)
	if len(m) != 3 {
		return 0, 0
	}
	line, _ := strconv.Atoi(m[1])
	col, _ := strconv.Atoi(m[2])
	return line, col
}
