// Package javascript runs scripts in a goja JavaScript runtime.
//
// Each session gets a fresh runtime. Host callables are plain global
// functions; keyword arguments are passed by ending the argument list with
// kw({...}).
package javascript

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// Name is the dialect name.
const Name = "javascript"

const filename = "turn.js"

// Sandbox implements sandbox.Sandbox.
type Sandbox struct {
	// MaxCallStackSize bounds JS call depth. Zero uses 1024.
	MaxCallStackSize int
}

// New returns a Sandbox with default settings.
func New() *Sandbox {
	return &Sandbox{MaxCallStackSize: 1024}
}

// Name implements sandbox.Sandbox.
func (s *Sandbox) Name() string { return Name }

// Start implements sandbox.Sandbox.
func (s *Sandbox) Start(ctx context.Context, req sandbox.StartRequest) (sandbox.Progress, error) {
	if req.TypeCheck {
		return nil, sandbox.Errorf(sandbox.KindTypeCheck, "type checking is not supported by the %s dialect", Name)
	}

	prog, err := compile(req.Code)
	if err != nil {
		return nil, err
	}

	return sandbox.Run(ctx, req, func(ctx context.Context, host sandbox.Host) error {
		return s.exec(ctx, req, prog, host)
	})
}

func compile(code string) (*goja.Program, error) {
	ast, err := parser.ParseFile(nil, filename, code, 0)
	if err != nil {
		out := &sandbox.Error{Kind: sandbox.KindSyntax, Message: err.Error(), Err: err}
		var list parser.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			out.Message = list[0].Message
			out.Line = list[0].Position.Line
			out.Column = list[0].Position.Column
		}
		return nil, out
	}

	prog, err := goja.CompileAST(ast, false)
	if err != nil {
		out := &sandbox.Error{Kind: sandbox.KindSyntax, Message: err.Error(), Err: err}
		var cse *goja.CompilerSyntaxError
		if errors.As(err, &cse) {
			out.Message = cse.Message
			if cse.File != nil {
				pos := cse.File.Position(cse.Offset)
				out.Line, out.Column = pos.Line, pos.Column
			}
		}
		return nil, out
	}
	return prog, nil
}

func (s *Sandbox) exec(ctx context.Context, req sandbox.StartRequest, prog *goja.Program, host sandbox.Host) error {
	// Create a new goja runtime for each session (isolation)
	vm := goja.New()
	if s.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(s.MaxCallStackSize)
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	if err := setupEnvironment(vm, req, host); err != nil {
		return sandbox.Errorf(sandbox.KindRuntime, "failed to setup environment: %v", err)
	}

	if _, err := vm.RunProgram(prog); err != nil {
		return runtimeError(err, req.Code)
	}
	return nil
}

// setupEnvironment binds print, console.log, kw, the inputs and the host
// callables into vm.
func setupEnvironment(vm *goja.Runtime, req sandbox.StartRequest, host sandbox.Host) error {
	global := vm.GlobalObject()
	for _, name := range []string{"eval", "Function"} {
		if err := global.Delete(name); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	printFunc := func(call goja.FunctionCall) goja.Value {
		args := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = formatValue(arg)
		}
		host.Print(strings.Join(args, " ") + "\n")
		return goja.Undefined()
	}
	if err := vm.Set("print", printFunc); err != nil {
		return fmt.Errorf("failed to set print: %w", err)
	}

	console := vm.NewObject()
	if err := console.Set("log", printFunc); err != nil {
		return fmt.Errorf("failed to set console.log: %w", err)
	}
	if err := vm.Set("console", console); err != nil {
		return fmt.Errorf("failed to set console: %w", err)
	}

	kw := func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if goja.IsUndefined(arg) || goja.IsNull(arg) {
			return vm.ToValue(&keywords{})
		}
		obj := arg.ToObject(vm)
		var kv sandbox.Kwargs
		for _, key := range obj.Keys() {
			kv = append(kv, sandbox.Binding{Name: key, Value: exportValue(obj.Get(key))})
		}
		return vm.ToValue(&keywords{values: kv})
	}
	if err := vm.Set("kw", kw); err != nil {
		return fmt.Errorf("failed to set kw: %w", err)
	}

	for _, in := range req.Inputs {
		if err := vm.Set(in.Name, toValue(vm, in.Value)); err != nil {
			return fmt.Errorf("failed to set variable %s: %w", in.Name, err)
		}
	}

	for _, name := range req.Callables {
		if err := vm.Set(name, hostFunc(vm, host, name)); err != nil {
			return fmt.Errorf("failed to set callable %s: %w", name, err)
		}
	}
	return nil
}

// keywords marks the trailing kw({...}) argument of a host call.
type keywords struct {
	values sandbox.Kwargs
}

func hostFunc(vm *goja.Runtime, host sandbox.Host, name string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := call.Arguments
		var kwargs sandbox.Kwargs
		if n := len(args); n > 0 {
			if kw, ok := args[n-1].Export().(*keywords); ok {
				kwargs = kw.values
				args = args[:n-1]
			}
		}
		goArgs := make([]any, len(args))
		for i, a := range args {
			goArgs[i] = exportValue(a)
		}

		result, err := host.Call(name, goArgs, kwargs)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return toValue(vm, result)
	}
}

// toValue converts a host value into a JS value. Object keys are inserted
// in sorted order so iteration is deterministic.
func toValue(vm *goja.Runtime, v any) goja.Value {
	switch val := sandbox.Normalize(v).(type) {
	case nil:
		return goja.Null()
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = toValue(vm, item)
		}
		return vm.NewArray(items...)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := vm.NewObject()
		for _, k := range keys {
			_ = obj.Set(k, toValue(vm, val[k]))
		}
		return obj
	default:
		return vm.ToValue(val)
	}
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return sandbox.Normalize(v.Export())
}

// formatValue renders a value for print.
func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	switch v.Export().(type) {
	case []any, map[string]any:
		if obj, ok := v.(*goja.Object); ok {
			if b, err := obj.MarshalJSON(); err == nil {
				return string(b)
			}
		}
	}
	return v.String()
}

var notDefined = regexp.MustCompile(`^ReferenceError: ([\p{L}\p{N}_$]+) is not defined$`)

// calledAt reports whether the reference to name at line and column of
// code is the function of a call. goja places a failed call at its
// opening parenthesis and a failed read at the identifier.
func calledAt(code string, line, column int, name string) bool {
	if line <= 0 || column <= 0 {
		return false
	}
	lines := strings.SplitAfter(code, "\n")
	if line > len(lines) {
		return false
	}
	offset := column - 1
	for _, l := range lines[:line-1] {
		offset += len(l)
	}
	if offset >= len(code) {
		return false
	}
	if code[offset] == '(' {
		return strings.HasSuffix(strings.TrimRight(code[:offset], " \t"), name)
	}
	return strings.HasPrefix(code[offset:], name) && sandbox.IsCallSite(code, offset+len(name))
}

func runtimeError(err error, code string) error {
	var inner *sandbox.Error
	if errors.As(err, &inner) {
		return inner
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return &sandbox.Error{Kind: sandbox.KindLimit, Message: "maximum call stack size exceeded", Err: err}
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		out := &sandbox.Error{Kind: sandbox.KindRuntime, Message: ex.Error(), Err: err}
		if val := ex.Value(); val != nil {
			out.Message = val.String()
		}
		for _, frame := range ex.Stack() {
			if pos := frame.Position(); pos.Line > 0 {
				out.Line, out.Column = pos.Line, pos.Column
				break
			}
		}
		if m := notDefined.FindStringSubmatch(out.Message); m != nil && calledAt(code, out.Line, out.Column, m[1]) {
			return sandbox.UnknownCallable(m[1], out.Line, out.Column, err)
		}
		return out
	}
	return sandbox.AsError(err)
}
