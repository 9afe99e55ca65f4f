// SPDX-License-Identifier: MPL-2.0

package pkgbuild

import (
	"fmt"
	"maps"
	"slices"
)

const (
	// KindString is a scalar bash variable.
	KindString Kind = iota + 1
	// KindArray is an indexed bash array.
	KindArray
	// KindMap is an associative bash array.
	KindMap
)

type (
	// Kind tags the shape of a Value.
	Kind int

	// Value is a tagged bash value: a string, an ordered list, or a mapping.
	// The zero Value is unset.
	Value struct {
		kind    Kind
		str     string
		list    []string
		mapping map[string]string
	}

	// Variable is a named Value.
	Variable struct {
		Name  string
		Value Value
	}
)

// String returns the protocol tag for the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "STRING"
	case KindArray:
		return "ARRAY"
	case KindMap:
		return "MAP"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func parseKind(tag string) (Kind, bool) {
	switch tag {
	case "STRING":
		return KindString, true
	case "ARRAY":
		return KindArray, true
	case "MAP":
		return KindMap, true
	default:
		return 0, false
	}
}

// StringValue returns a scalar value.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// ArrayValue returns a list value holding a copy of values.
func ArrayValue(values ...string) Value {
	return Value{kind: KindArray, list: slices.Clone(values)}
}

// MapValue returns a mapping value holding a copy of m.
func MapValue(m map[string]string) Value {
	return Value{kind: KindMap, mapping: maps.Clone(m)}
}

// Kind returns the value's shape, or 0 for the unset value.
func (v Value) Kind() Kind { return v.kind }

// IsSet reports whether the value was assigned.
func (v Value) IsSet() bool { return v.kind != 0 }

// Str returns the scalar form: the string itself, or the first element of a
// list (bash semantics for "$arr").
func (v Value) Str() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindArray:
		if len(v.list) > 0 {
			return v.list[0]
		}
	}
	return ""
}

// List returns the list form. A scalar becomes a one-element list.
func (v Value) List() []string {
	switch v.kind {
	case KindString:
		return []string{v.str}
	case KindArray:
		return slices.Clone(v.list)
	case KindMap:
		return slices.Sorted(maps.Values(v.mapping))
	default:
		return nil
	}
}

// Map returns a copy of the mapping, or nil for non-map values.
func (v Value) Map() map[string]string {
	if v.kind != KindMap {
		return nil
	}
	return maps.Clone(v.mapping)
}

// Words returns the protocol words for the value. Map entries are emitted as
// key/value pairs sorted by key.
func (v Value) Words() []string {
	switch v.kind {
	case KindString:
		return []string{v.str}
	case KindArray:
		return slices.Clone(v.list)
	case KindMap:
		words := make([]string, 0, 2*len(v.mapping))
		for _, k := range slices.Sorted(maps.Keys(v.mapping)) {
			words = append(words, k, v.mapping[k])
		}
		return words
	default:
		return nil
	}
}

// Equal reports whether two values have the same kind and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindArray:
		return slices.Equal(v.list, o.list)
	case KindMap:
		return maps.Equal(v.mapping, o.mapping)
	default:
		return true
	}
}
