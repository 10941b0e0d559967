package document

import (
	"fmt"
	"math"
)

// FieldType enumerates the value types a declared field may carry.
type FieldType string

const (
	// FieldString is free text. Default: "".
	FieldString FieldType = "string"

	// FieldInt is a 64-bit integer. Default: 0.
	FieldInt FieldType = "int"

	// FieldDecimal is a floating-point amount. Default: 0.
	FieldDecimal FieldType = "decimal"

	// FieldBool is a boolean flag. Default: false.
	FieldBool FieldType = "bool"

	// FieldDate is a calendar date stored as "2006-01-02". Default: "".
	FieldDate FieldType = "date"

	// FieldArray is an ordered list of arbitrary JSON values. Default: [].
	FieldArray FieldType = "array"

	// FieldMap is a string-keyed object of arbitrary JSON values. Default: {}.
	FieldMap FieldType = "map"
)

// ValidFieldTypes defines the allowed field types.
var ValidFieldTypes = map[FieldType]bool{
	FieldString:  true,
	FieldInt:     true,
	FieldDecimal: true,
	FieldBool:    true,
	FieldDate:    true,
	FieldArray:   true,
	FieldMap:     true,
}

// FieldDef declares one field of a collection's field table.
type FieldDef struct {
	// Name is the key under which the value is stored in the document body.
	Name string `json:"name"`

	// Type determines coercion and the default value.
	Type FieldType `json:"type"`

	// Required fields must be non-zero at create time.
	Required bool `json:"required,omitempty"`

	// Indexed fields feed the search token map.
	Indexed bool `json:"indexed,omitempty"`

	// Default, when non-nil, overrides the type's zero default.
	Default any `json:"default,omitempty"`
}

// Fields is the body of a document: declared field names to values.
type Fields map[string]any

// Clone returns a shallow copy of the field map.
// Nested arrays and maps are shared with the original.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// DefaultFor returns the zero default for a field type.
func DefaultFor(t FieldType) any {
	switch t {
	case FieldString, FieldDate:
		return ""
	case FieldInt:
		return int64(0)
	case FieldDecimal:
		return float64(0)
	case FieldBool:
		return false
	case FieldArray:
		return []any{}
	case FieldMap:
		return map[string]any{}
	default:
		return nil
	}
}

// Coerce converts a value to the representation declared for its type.
// JSON decoding hands back float64 for every number and []any/map[string]any
// for composites; coercion pins those down so the rest of the engine can
// type-assert without guessing.
func Coerce(t FieldType, v any) (any, error) {
	if v == nil {
		return DefaultFor(t), nil
	}

	switch t {
	case FieldString, FieldDate:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil

	case FieldInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			return int64(n), nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", v)
		}

	case FieldDecimal:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		default:
			return nil, fmt.Errorf("expected number, got %T", v)
		}

	case FieldBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil

	case FieldArray:
		a, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}
		return a, nil

	case FieldMap:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected map, got %T", v)
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
}

// ApplyDefaults builds a field map from a field table and caller-supplied
// overrides. Every declared field is present in the result: the declared
// default first, then the caller's value coerced to the declared type.
// Undeclared keys in the input are dropped.
func ApplyDefaults(table []FieldDef, in Fields) (Fields, error) {
	out := make(Fields, len(table))
	for _, def := range table {
		val := def.Default
		if val == nil {
			val = DefaultFor(def.Type)
		}
		if supplied, ok := in[def.Name]; ok {
			val = supplied
		}
		coerced, err := Coerce(def.Type, val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", def.Name, err)
		}
		out[def.Name] = coerced
	}
	return out, nil
}

// CoerceAll re-types a loaded field map against its field table.
// Missing declared fields get their defaults; undeclared fields survive
// only if reserved (leading underscore), which covers the token map.
func CoerceAll(table []FieldDef, in Fields) (Fields, error) {
	out, err := ApplyDefaults(table, in)
	if err != nil {
		return nil, err
	}
	for k, v := range in {
		if len(k) > 0 && k[0] == '_' {
			out[k] = v
		}
	}
	return out, nil
}

// IsZero reports whether a value is the zero default for its type.
// Used by the required-field check.
func IsZero(t FieldType, v any) bool {
	switch t {
	case FieldString, FieldDate:
		s, _ := v.(string)
		return s == ""
	case FieldInt:
		n, _ := v.(int64)
		return n == 0
	case FieldDecimal:
		n, _ := v.(float64)
		return n == 0
	case FieldBool:
		b, _ := v.(bool)
		return !b
	case FieldArray:
		a, _ := v.([]any)
		return len(a) == 0
	case FieldMap:
		m, _ := v.(map[string]any)
		return len(m) == 0
	default:
		return v == nil
	}
}
