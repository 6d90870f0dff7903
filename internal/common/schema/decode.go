// internal/common/schema/decode.go
package schema

import (
	"fmt"
	"math"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
)

// ParseJSON decodes data and validates the result against s. Syntax errors
// wrap ErrMalformedJSON; shape errors are returned as produced by Parse.
func ParseJSON(s *Schema, data []byte) (any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return s.Parse(raw)
}

// Decode validates v against s and binds the validated value into T using the
// json struct tags of T.
func Decode[T any](s *Schema, v any) (T, error) {
	var out T
	parsed, err := s.Parse(v)
	if err != nil {
		return out, err
	}
	if err := bind(parsed, &out); err != nil {
		return out, err
	}
	return out, nil
}

// DecodeJSON is ParseJSON followed by binding into T.
func DecodeJSON[T any](s *Schema, data []byte) (T, error) {
	var out T
	parsed, err := ParseJSON(s, data)
	if err != nil {
		return out, err
	}
	if err := bind(parsed, &out); err != nil {
		return out, err
	}
	return out, nil
}

func bind(parsed any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           target,
		ZeroFields:       true,
		WeaklyTypedInput: false,
		DecodeHook:       integralHook,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(parsed); err != nil {
		return fmt.Errorf("bind validated value: %w", err)
	}
	return nil
}

// integralHook refuses to truncate a float64 into an integer field. Without it
// mapstructure turns 3.7 into 3 and wraps values beyond the target's range.
func integralHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Float64 {
		return data, nil
	}
	f, ok := data.(float64)
	if !ok {
		return data, nil
	}

	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integer, got %v", f)
		}
		if f < math.MinInt64 || f >= math.MaxInt64 || reflect.Zero(to).OverflowInt(int64(f)) {
			return nil, fmt.Errorf("integer %v out of range for %s", f, to)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integer, got %v", f)
		}
		if f < 0 || f >= math.MaxUint64 || reflect.Zero(to).OverflowUint(uint64(f)) {
			return nil, fmt.Errorf("integer %v out of range for %s", f, to)
		}
	}
	return data, nil
}
