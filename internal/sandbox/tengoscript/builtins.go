package tengoscript

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/d5/tengo/v2"
)

// addBuiltins binds print helpers, kw and the string helpers every session
// gets.
func addBuiltins(script *tengo.Script, relay *hostRelay) {
	write := func(newline bool) tengo.CallableFunc {
		return func(args ...tengo.Object) (tengo.Object, error) {
			parts := make([]string, len(args))
			for i, arg := range args {
				parts[i] = objectToString(arg)
			}
			text := strings.Join(parts, " ")
			if newline {
				text += "\n"
			}
			relay.print(text)
			return tengo.UndefinedValue, nil
		}
	}

	funcs := map[string]tengo.CallableFunc{
		"println":  write(true),
		"print":    write(false),
		"kw":       kwFunc,
		"contains": stringsFunc2(func(s, sub string) tengo.Object { return boolObject(strings.Contains(s, sub)) }),
		"split": stringsFunc2(func(s, sep string) tengo.Object {
			return stringArray(strings.Split(s, sep))
		}),
		"join":     joinFunc,
		"replace":  replaceFunc,
		"find_all": findAllFunc,
	}
	for name, fn := range funcs {
		_ = script.Add(name, &tengo.UserFunction{Name: name, Value: fn})
	}
}

func kwFunc(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 1 {
		return nil, tengo.ErrWrongNumArguments
	}
	var values map[string]tengo.Object
	switch m := args[0].(type) {
	case *tengo.Map:
		values = m.Value
	case *tengo.ImmutableMap:
		values = m.Value
	default:
		return nil, tengo.ErrInvalidArgumentType{Name: "first", Expected: "map", Found: args[0].TypeName()}
	}

	// Tengo maps are unordered; keywords are passed sorted by name.
	kw := &keywords{}
	for _, name := range sortedKeys(values) {
		kw.values = kw.values.Set(name, fromObject(values[name]))
	}
	return kw, nil
}

func stringsFunc2(fn func(a, b string) tengo.Object) tengo.CallableFunc {
	return func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 2 {
			return nil, tengo.ErrWrongNumArguments
		}
		a, ok := tengo.ToString(args[0])
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "first", Expected: "string", Found: args[0].TypeName()}
		}
		b, ok := tengo.ToString(args[1])
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "second", Expected: "string", Found: args[1].TypeName()}
		}
		return fn(a, b), nil
	}
}

func joinFunc(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	arr, ok := args[0].(*tengo.Array)
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "first", Expected: "array", Found: args[0].TypeName()}
	}
	sep, ok := tengo.ToString(args[1])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "second", Expected: "string", Found: args[1].TypeName()}
	}
	strs := make([]string, len(arr.Value))
	for i, v := range arr.Value {
		strs[i] = objectToString(v)
	}
	return &tengo.String{Value: strings.Join(strs, sep)}, nil
}

func replaceFunc(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 3 {
		return nil, tengo.ErrWrongNumArguments
	}
	strs := make([]string, 3)
	for i, arg := range args {
		s, ok := tengo.ToString(arg)
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: fmt.Sprintf("argument %d", i+1), Expected: "string", Found: arg.TypeName()}
		}
		strs[i] = s
	}
	return &tengo.String{Value: strings.ReplaceAll(strs[0], strs[1], strs[2])}, nil
}

func findAllFunc(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 2 {
		return nil, tengo.ErrWrongNumArguments
	}
	pattern, ok := tengo.ToString(args[0])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "first", Expected: "string", Found: args[0].TypeName()}
	}
	text, ok := tengo.ToString(args[1])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "second", Expected: "string", Found: args[1].TypeName()}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return stringArray(re.FindAllString(text, -1)), nil
}

func stringArray(items []string) *tengo.Array {
	arr := make([]tengo.Object, len(items))
	for i, s := range items {
		arr[i] = &tengo.String{Value: s}
	}
	return &tengo.Array{Value: arr}
}

func boolObject(b bool) tengo.Object {
	if b {
		return tengo.TrueValue
	}
	return tengo.FalseValue
}

func sortedKeys(m map[string]tengo.Object) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
