// internal/common/schema/schema.go

// Package schema validates untyped decoded JSON against a declared shape.
//
// A Schema is built once from the combinators in this package and applied with
// Parse. Validation is fail-fast: the first failure encountered, in declaration
// order for objects and index order for arrays, is the one reported.
package schema

import (
	"encoding/json"
	"math"
)

// Kind identifies one of the closed set of schema kinds.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindCoercedNumber
	KindNullable
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindCoercedNumber:
		return "coercible number"
	case KindNullable:
		return "nullable"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Field is a named member of an object schema.
type Field struct {
	Name   string
	Schema *Schema
}

// F declares an object field.
func F(name string, s *Schema) Field {
	return Field{Name: name, Schema: s}
}

// Schema is an immutable validation rule. The zero value is not usable; build
// schemas with the package constructors.
type Schema struct {
	kind   Kind
	inner  *Schema
	fields []Field
}

// missingValue marks an object field that is not present in the input. It is
// distinct from an explicit null.
type missingValue struct{}

var missing = missingValue{}

func String() *Schema { return &Schema{kind: KindString} }

func Number() *Schema { return &Schema{kind: KindNumber} }

// CoercedNumber accepts anything that converts to a finite number: numbers,
// numeric strings (surrounding whitespace ignored, empty string is 0), booleans
// and null.
func CoercedNumber() *Schema { return &Schema{kind: KindCoercedNumber} }

func Nullable(inner *Schema) *Schema {
	return &Schema{kind: KindNullable, inner: inner}
}

// Nullable wraps s so that null is also accepted.
func (s *Schema) Nullable() *Schema { return Nullable(s) }

// Object declares a record. Fields are validated in the order given and only
// declared fields appear in the result.
func Object(fields ...Field) *Schema {
	fs := make([]Field, len(fields))
	copy(fs, fields)
	return &Schema{kind: KindObject, fields: fs}
}

func Array(item *Schema) *Schema {
	return &Schema{kind: KindArray, inner: item}
}

func (s *Schema) Kind() Kind { return s.kind }

// Fields returns a copy of an object schema's declared fields.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Parse validates v and returns the normalized value: strings, float64
// numbers, nil, map[string]any and []any.
func (s *Schema) Parse(v any) (any, error) {
	return s.parse(v)
}

func (s *Schema) parse(v any) (any, error) {
	switch s.kind {
	case KindString:
		str, ok := v.(string)
		if !ok {
			return nil, mismatch(s.kind, v)
		}
		return str, nil

	case KindNumber:
		n, ok := toNumber(v)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, mismatch(s.kind, v)
		}
		return n, nil

	case KindCoercedNumber:
		n, ok := coerceNumber(v)
		if !ok {
			return nil, mismatch(s.kind, v)
		}
		return n, nil

	case KindNullable:
		if v == nil {
			return nil, nil
		}
		return s.inner.parse(v)

	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(s.kind, v)
		}
		out := make(map[string]any, len(s.fields))
		for _, f := range s.fields {
			raw, present := obj[f.Name]
			if !present {
				raw = missing
			}
			val, err := f.Schema.parse(raw)
			if err != nil {
				return nil, &FieldMismatch{Field: f.Name, Cause: err}
			}
			out[f.Name] = val
		}
		return out, nil

	case KindArray:
		items, ok := v.([]any)
		if !ok {
			return nil, mismatch(s.kind, v)
		}
		out := make([]any, len(items))
		for i, item := range items {
			val, err := s.inner.parse(item)
			if err != nil {
				return nil, &ArrayItemMismatch{Index: i, Cause: err}
			}
			out[i] = val
		}
		return out, nil
	}

	return nil, mismatch(s.kind, v)
}

// toNumber accepts the numeric representations a JSON decoder may produce.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// describe names the dynamic kind of v for failure messages.
func describe(v any) string {
	switch v.(type) {
	case missingValue:
		return "missing"
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if n, ok := toNumber(v); ok {
		if math.IsNaN(n) {
			return "NaN"
		}
		if math.IsInf(n, 0) {
			return "infinite number"
		}
		return "number"
	}
	return "unsupported value"
}
