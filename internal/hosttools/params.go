// Package hosttools provides ready-made host tools that can be registered
// on a bridge.Interpreter: confined filesystem access, regular expressions
// and delegated queries.
package hosttools

import (
	"fmt"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// params gives uniform access to a tool's arguments, each of which may be
// passed positionally or by keyword.
type params struct {
	tool   string
	args   []any
	kwargs sandbox.Kwargs
}

func newParams(tool string, args []any, kwargs sandbox.Kwargs) params {
	return params{tool: tool, args: args, kwargs: kwargs}
}

func (p params) value(pos int, name string) (any, bool) {
	if v, ok := p.kwargs.Get(name); ok {
		return v, true
	}
	if pos < len(p.args) {
		return p.args[pos], true
	}
	return nil, false
}

func (p params) requireString(pos int, name string) (string, error) {
	v, ok := p.value(pos, name)
	if !ok {
		return "", fmt.Errorf("%s requires argument %q", p.tool, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %q must be a string, got %T", p.tool, name, v)
	}
	return s, nil
}

func (p params) optString(pos int, name, def string) (string, error) {
	if _, ok := p.value(pos, name); !ok {
		return def, nil
	}
	return p.requireString(pos, name)
}

func (p params) optInt(pos int, name string, def int) (int, error) {
	v, ok := p.value(pos, name)
	if !ok || v == nil {
		return def, nil
	}
	switch n := sandbox.Normalize(v).(type) {
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%s: argument %q must be an integer, got %T", p.tool, name, v)
}

func (p params) requireStrings(pos int, name string) ([]string, error) {
	v, ok := p.value(pos, name)
	if !ok {
		return nil, fmt.Errorf("%s requires argument %q", p.tool, name)
	}
	list, ok := sandbox.Normalize(v).([]any)
	if !ok {
		return nil, fmt.Errorf("%s: argument %q must be a list, got %T", p.tool, name, v)
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s: item %d of %q must be a string, got %T", p.tool, i, name, item)
		}
		out[i] = s
	}
	return out, nil
}

func stringList(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

// Collect merges tool sets. Later sets win on a name clash.
func Collect(sets ...map[string]bridge.ToolFunc) map[string]bridge.ToolFunc {
	out := make(map[string]bridge.ToolFunc)
	for _, set := range sets {
		for name, fn := range set {
			out[name] = fn
		}
	}
	return out
}
