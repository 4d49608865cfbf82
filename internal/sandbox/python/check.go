package python

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// Check implements sandbox.Checker. It resolves every name in code against
// declared, the stub definitions and the builtins, then checks calls of
// stubbed functions against their signatures. Nothing is executed.
func (s *Sandbox) Check(code, stubs string, declared []string) error {
	file, err := parse(code)
	if err != nil {
		return err
	}

	set := make(map[string]bool, len(declared))
	for _, name := range declared {
		set[name] = true
	}
	for name := range s.Modules {
		set[name] = true
	}

	src, offset := code, 0
	var sigs map[string]signature
	if strings.TrimSpace(stubs) != "" {
		stubFile, err := fileOptions().Parse("<stubs>", stubs, 0)
		if err != nil {
			e := syntaxError(err, 0)
			e.Kind = sandbox.KindTypeCheck
			e.Message = "invalid stubs: " + e.Message
			return e
		}
		sigs = signatures(stubFile)
		src = stubs + "\n" + code
		offset = strings.Count(stubs+"\n", "\n")
	}

	combined, err := fileOptions().Parse(filename, src, 0)
	if err != nil {
		return syntaxError(err, offset)
	}
	isPredeclared := func(name string) bool { return set[name] }
	if err := resolve.File(combined, isPredeclared, starlark.Universe.Has); err != nil {
		return resolveError(err, sandbox.KindTypeCheck, offset)
	}

	return checkCalls(file, sigs)
}

func resolveError(err error, kind sandbox.ErrorKind, lineOffset int) *sandbox.Error {
	var list resolve.ErrorList
	if !errors.As(err, &list) || len(list) == 0 {
		return &sandbox.Error{Kind: kind, Message: err.Error(), Err: err}
	}
	first := list[0]
	msg := first.Msg
	if len(list) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(list)-1)
	}
	line := int(first.Pos.Line) - lineOffset
	if line <= 0 {
		msg = "stubs: " + msg
		line = int(first.Pos.Line)
	}
	return &sandbox.Error{Kind: kind, Message: msg, Line: line, Column: int(first.Pos.Col), Err: err}
}

type signature struct {
	params   []string
	optional map[string]bool
	kwonly   []string
	varargs  bool
	varkw    bool
}

func signatures(f *syntax.File) map[string]signature {
	sigs := make(map[string]signature)
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok {
			continue
		}
		sig := signature{optional: make(map[string]bool)}
		afterStar := false
		for _, p := range def.Params {
			switch p := p.(type) {
			case *syntax.Ident:
				sig.add(p.Name, afterStar)
			case *syntax.BinaryExpr:
				if id, ok := p.X.(*syntax.Ident); ok {
					sig.add(id.Name, afterStar)
					sig.optional[id.Name] = true
				}
			case *syntax.UnaryExpr:
				if p.Op == syntax.STARSTAR {
					sig.varkw = true
					continue
				}
				afterStar = true
				if p.X != nil {
					sig.varargs = true
				}
			}
		}
		sigs[def.Name.Name] = sig
	}
	return sigs
}

func (sig *signature) add(name string, kwonly bool) {
	if kwonly {
		sig.kwonly = append(sig.kwonly, name)
		return
	}
	sig.params = append(sig.params, name)
}

func (sig signature) accepts(name string) bool {
	for _, p := range sig.params {
		if p == name {
			return true
		}
	}
	for _, p := range sig.kwonly {
		if p == name {
			return true
		}
	}
	return sig.varkw
}

func checkCalls(f *syntax.File, sigs map[string]signature) error {
	if len(sigs) == 0 {
		return nil
	}
	var firstErr error
	syntax.Walk(f, func(n syntax.Node) bool {
		if firstErr != nil {
			return false
		}
		call, ok := n.(*syntax.CallExpr)
		if !ok {
			return true
		}
		fn, ok := call.Fn.(*syntax.Ident)
		if !ok {
			return true
		}
		sig, ok := sigs[fn.Name]
		if !ok {
			return true
		}
		if msg := sig.check(fn.Name, call.Args); msg != "" {
			pos, _ := call.Span()
			firstErr = &sandbox.Error{
				Kind:    sandbox.KindTypeCheck,
				Message: msg,
				Line:    int(pos.Line),
				Column:  int(pos.Col),
			}
			return false
		}
		return true
	})
	return firstErr
}

func (sig signature) check(name string, args []syntax.Expr) string {
	npos := 0
	given := make(map[string]bool)
	for _, arg := range args {
		switch a := arg.(type) {
		case *syntax.UnaryExpr:
			if a.Op == syntax.STAR || a.Op == syntax.STARSTAR {
				// Unpacked arguments cannot be checked statically.
				return ""
			}
			npos++
		case *syntax.BinaryExpr:
			id, ok := a.X.(*syntax.Ident)
			if a.Op != syntax.EQ || !ok {
				npos++
				continue
			}
			if !sig.accepts(id.Name) {
				return fmt.Sprintf("%s() got an unexpected keyword argument %q", name, id.Name)
			}
			given[id.Name] = true
		default:
			npos++
		}
	}

	if npos > len(sig.params) && !sig.varargs {
		return fmt.Sprintf("%s() takes %d positional arguments but %d were given", name, len(sig.params), npos)
	}
	for i, p := range sig.params {
		if i < npos {
			if given[p] {
				return fmt.Sprintf("%s() got multiple values for argument %q", name, p)
			}
			continue
		}
		if !given[p] && !sig.optional[p] {
			return fmt.Sprintf("%s() missing required argument %q", name, p)
		}
	}
	for _, p := range sig.kwonly {
		if !given[p] && !sig.optional[p] {
			return fmt.Sprintf("%s() missing required keyword argument %q", name, p)
		}
	}
	return ""
}

// undefinedCallee returns an unknown-callable error when the first
// resolution failure in err is the function of a call expression in f.
func undefinedCallee(f *syntax.File, err error) *sandbox.Error {
	var list resolve.ErrorList
	if !errors.As(err, &list) || len(list) == 0 || !strings.HasPrefix(list[0].Msg, "undefined: ") {
		return nil
	}
	pos := list[0].Pos

	var out *sandbox.Error
	syntax.Walk(f, func(n syntax.Node) bool {
		if out != nil {
			return false
		}
		call, ok := n.(*syntax.CallExpr)
		if !ok {
			return true
		}
		if id, ok := call.Fn.(*syntax.Ident); ok && id.NamePos.Line == pos.Line && id.NamePos.Col == pos.Col {
			out = sandbox.UnknownCallable(id.Name, int(pos.Line), int(pos.Col), err)
			return false
		}
		return true
	})
	return out
}
