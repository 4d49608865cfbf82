package tengoscript

import (
	"github.com/d5/tengo/v2"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// toObject converts a host value to a Tengo object.
func toObject(v any) (tengo.Object, error) {
	return tengo.FromInterface(sandbox.Normalize(v))
}

// fromObject converts a Tengo object to the portable host model.
func fromObject(o tengo.Object) any {
	switch v := o.(type) {
	case *tengo.Char:
		return string(v.Value)
	case *tengo.Undefined:
		return nil
	}
	return sandbox.Normalize(tengo.ToInterface(o))
}

// objectToString converts a Tengo object to its printed form.
func objectToString(obj tengo.Object) string {
	switch v := obj.(type) {
	case *tengo.String:
		return v.Value
	case *tengo.Char:
		return string(v.Value)
	case *tengo.Undefined:
		return "undefined"
	default:
		return obj.String()
	}
}
