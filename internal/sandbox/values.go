package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Binding is a single name/value pair.
type Binding struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Bindings is an ordered list of name/value pairs. Names are unique when
// built with Set.
type Bindings []Binding

// Kwargs are keyword arguments in call order.
type Kwargs = Bindings

// Get returns the value bound to name.
func (b Bindings) Get(name string) (any, bool) {
	for _, kv := range b {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return nil, false
}

// Set binds name to value, keeping the original position when name is
// already bound.
func (b Bindings) Set(name string, value any) Bindings {
	for i := range b {
		if b[i].Name == name {
			b[i].Value = value
			return b
		}
	}
	return append(b, Binding{Name: name, Value: value})
}

// Names returns the bound names in order.
func (b Bindings) Names() []string {
	names := make([]string, len(b))
	for i, kv := range b {
		names[i] = kv.Name
	}
	return names
}

// Map copies b into a map.
func (b Bindings) Map() map[string]any {
	m := make(map[string]any, len(b))
	for _, kv := range b {
		m[kv.Name] = kv.Value
	}
	return m
}

// Clone returns a shallow copy of b.
func (b Bindings) Clone() Bindings {
	if b == nil {
		return nil
	}
	out := make(Bindings, len(b))
	copy(out, b)
	return out
}

// Merge returns base overlaid with top. Entries of top win; new names keep
// top's order after base's.
func Merge(base, top Bindings) Bindings {
	out := base.Clone()
	for _, kv := range top {
		out = out.Set(kv.Name, kv.Value)
	}
	return out
}

// BindingsFromMap builds Bindings from m with names sorted, so the result
// is deterministic.
func BindingsFromMap(m map[string]any) Bindings {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(Bindings, 0, len(names))
	for _, name := range names {
		out = append(out, Binding{Name: name, Value: m[name]})
	}
	return out
}

// Normalize converts a host value into the portable value model shared by
// all dialects: nil, bool, int64, float64, string, []any and
// map[string]any, recursively. Values outside the model are rendered with
// fmt, as are unsigned integers above math.MaxInt64.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, int64, float64, string:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint32:
		return int64(val)
	case float32:
		return float64(val)
	case []byte:
		return string(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case Bindings:
		return Normalize(val.Map())
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return strconv.FormatUint(u, 10)
		}
		return int64(u)
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	}
	return fmt.Sprintf("%v", v)
}

// EncodeJSON encodes v, after Normalize, so that DecodeJSON returns it
// unchanged: floats always carry a fraction or an exponent. NaN and the
// infinities have no JSON form and are rejected.
func EncodeJSON(v any) ([]byte, error) {
	marked, err := markFloats(Normalize(v))
	if err != nil {
		return nil, err
	}
	return json.Marshal(marked)
}

func markFloats(v any) (any, error) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("float %v has no JSON form", val)
		}
		text := strconv.FormatFloat(val, 'g', -1, 64)
		if !strings.ContainsAny(text, ".eE") {
			text += ".0"
		}
		return json.Number(text), nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			m, err := markFloats(item)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			m, err := markFloats(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = m
		}
		return out, nil
	}
	return v, nil
}

// DecodeJSON decodes data into the value model. Integral numbers come back
// as int64 and all others as float64.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return fromJSON(v), nil
}

func fromJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case []any:
		for i := range val {
			val[i] = fromJSON(val[i])
		}
	case map[string]any:
		for k := range val {
			val[k] = fromJSON(val[k])
		}
	}
	return v
}
