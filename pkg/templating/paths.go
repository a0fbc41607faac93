package templating

import (
	"encoding/json"
	"strconv"
)

// Kind is the JSON type of a value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// MarshalText lets Kind be used as a readable JSON value and map key.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindOf reports the JSON type of a decoded value.
func KindOf(value any) Kind {
	switch value.(type) {
	case nil:
		return KindNull
	case string:
		return KindString
	case json.Number, float64, float32, int, int64:
		return KindNumber
	case bool:
		return KindBool
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	}
	return KindNull
}

// Paths lists every leaf path in a document together with the kind of value
// found there. Leaves are primitives and empty objects or arrays. Array
// elements appear under their index. Member names are joined with dots
// as they are, so a leaf below a member whose name contains a dot is
// listed but cannot be passed back to Find. A primitive root is reported
// under the empty path.
func Paths(doc any) map[string]Kind {
	paths := make(map[string]Kind)
	WalkLeaves(doc, func(path string, value any) {
		paths[path] = KindOf(value)
	})
	return paths
}

// WalkLeaves calls fn for every leaf of doc with its dotted path and the
// value found there. Empty objects and arrays are leaves. Members are
// visited in no particular order.
func WalkLeaves(doc any, fn func(path string, value any)) {
	walkLeaves("", doc, fn)
}

func walkLeaves(path string, value any, fn func(path string, value any)) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			fn(path, v)
			return
		}
		for name, member := range v {
			walkLeaves(joinPath(path, name), member, fn)
		}
	case []any:
		if len(v) == 0 {
			fn(path, v)
			return
		}
		for i, element := range v {
			walkLeaves(joinPath(path, strconv.Itoa(i)), element, fn)
		}
	default:
		fn(path, value)
	}
}

func joinPath(path, segment string) string {
	if path == "" {
		return segment
	}
	return path + "." + segment
}

// StringAt returns the primitive at path as text. Null, composite and
// missing values report ok == false.
func StringAt(path string, doc any) (string, bool) {
	value, ok := Find(path, doc)
	if !ok {
		return "", false
	}
	return primitiveText(value)
}

// Text returns a primitive value as text, numbers as written. Null and
// composite values report ok == false.
func Text(value any) (string, bool) {
	return primitiveText(value)
}
