package python

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// toValue converts a host value into a Starlark value. Map keys are
// inserted in sorted order so repeated turns see identical dicts.
func toValue(v any) (starlark.Value, error) {
	switch val := sandbox.Normalize(v).(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(keys))
		for _, k := range keys {
			sv, err := toValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", val)
	}
}

// fromValue converts a Starlark value into the portable host model.
// Tuples and sets become lists. Integers beyond int64 and dicts with
// non-string keys have no portable form and are rejected.
func fromValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s does not fit in 64 bits", val.String())
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		out := make([]any, val.Len())
		for i := range out {
			item, err := fromValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case starlark.Tuple:
		return fromValues(val)
	case *starlark.Set:
		items := make([]starlark.Value, 0, val.Len())
		iter := val.Iterate()
		defer iter.Done()
		var item starlark.Value
		for iter.Next(&item) {
			items = append(items, item)
		}
		return fromValues(items)
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, kv := range val.Items() {
			key, ok := kv[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key %s is a %s; only string keys are supported", kv[0].String(), kv[0].Type())
			}
			item, err := fromValue(kv[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", string(key), err)
			}
			out[string(key)] = item
		}
		return out, nil
	default:
		return v.String(), nil
	}
}

func fromValues(items []starlark.Value) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		v, err := fromValue(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
