package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itsmostafa/replbridge/internal/sandbox"
	"github.com/itsmostafa/replbridge/internal/state"
)

// Save merges kwargs into store. It backs the reserved save tool.
func Save(store *state.Store, args []any, kwargs sandbox.Kwargs) (string, error) {
	if len(args) > 0 {
		return "", fmt.Errorf("save takes keyword arguments only, got %d positional", len(args))
	}
	// Saved values must survive persistence unchanged.
	for _, kv := range kwargs {
		if _, err := sandbox.EncodeJSON(kv.Value); err != nil {
			return "", fmt.Errorf("cannot save %s: %w", kv.Name, err)
		}
	}
	store.Update(kwargs)
	return "Saved: " + strings.Join(kwargs.Names(), ", "), nil
}

// Clear removes the named entries from store, or everything when no names
// are given. Missing names are ignored. It backs the reserved clear tool.
func Clear(store *state.Store, args []any, kwargs sandbox.Kwargs) (string, error) {
	if len(kwargs) > 0 {
		return "", fmt.Errorf("clear takes names as positional arguments only")
	}
	if len(args) == 0 {
		store.Clear()
		return "Cleared all saved state", nil
	}

	names := make([]string, len(args))
	for i, arg := range args {
		name, ok := arg.(string)
		if !ok {
			return "", fmt.Errorf("clear expects names as strings, got %T", arg)
		}
		names[i] = name
	}
	for _, name := range names {
		store.Delete(name)
	}
	return "Cleared: " + strings.Join(names, ", "), nil
}

// FinalOutput is the structured result of a submit call, in binding order.
type FinalOutput sandbox.Bindings

// Get returns the value of field name.
func (f FinalOutput) Get(name string) (any, bool) {
	return sandbox.Bindings(f).Get(name)
}

// Map copies f into a map.
func (f FinalOutput) Map() map[string]any {
	return sandbox.Bindings(f).Map()
}

// MarshalJSON encodes f as a JSON object, keeping field order.
func (f FinalOutput) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(sandbox.Normalize(kv.Value))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", kv.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// BuildFinalOutput assembles the final output of a submit call. Keyword
// arguments are bound first. Positional arguments then fill the declared
// fields in order without overwriting a keyword binding.
// Without a schema, positional arguments are bound as arg0, arg1, ...
func BuildFinalOutput(fields []OutputField, args []any, kwargs sandbox.Kwargs) (FinalOutput, error) {
	out := sandbox.Bindings{}
	for _, kv := range kwargs {
		out = out.Set(kv.Name, kv.Value)
	}

	if len(fields) == 0 {
		for i, arg := range args {
			name := fmt.Sprintf("arg%d", i)
			if _, ok := out.Get(name); !ok {
				out = out.Set(name, arg)
			}
		}
		return FinalOutput(out), nil
	}

	if len(args) > len(fields) {
		return nil, &FinalOutputError{
			Message: fmt.Sprintf("takes %d positional arguments but %d were given", len(fields), len(args)),
		}
	}
	for i, arg := range args {
		name := fields[i].Name
		if _, ok := out.Get(name); !ok {
			out = out.Set(name, arg)
		}
	}
	return FinalOutput(out), nil
}
