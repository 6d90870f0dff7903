// internal/common/schema/errors.go
package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedJSON is returned by ParseJSON when the input is not valid JSON.
var ErrMalformedJSON = errors.New("MALFORMED_JSON")

// TypeMismatch is the leaf failure: a value was not of the expected kind.
type TypeMismatch struct {
	Expected string
	Got      string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Got)
}

func mismatch(k Kind, v any) *TypeMismatch {
	return &TypeMismatch{Expected: k.String(), Got: describe(v)}
}

// FieldMismatch reports that the named object field failed validation.
type FieldMismatch struct {
	Field string
	Cause error
}

func (e *FieldMismatch) Error() string { return render(e) }

func (e *FieldMismatch) Unwrap() error { return e.Cause }

func (e *FieldMismatch) segment() string { return e.Field }

func (e *FieldMismatch) cause() error { return e.Cause }

// ArrayItemMismatch reports that the element at Index failed validation.
type ArrayItemMismatch struct {
	Index int
	Cause error
}

func (e *ArrayItemMismatch) Error() string { return render(e) }

func (e *ArrayItemMismatch) Unwrap() error { return e.Cause }

func (e *ArrayItemMismatch) segment() string { return "[" + strconv.Itoa(e.Index) + "]" }

func (e *ArrayItemMismatch) cause() error { return e.Cause }

type segment interface {
	error
	segment() string
	cause() error
}

func render(seg segment) string {
	var leaf error = seg
	for {
		s, ok := leaf.(segment)
		if !ok {
			break
		}
		leaf = s.cause()
	}
	return Path(seg) + ": " + leaf.Error()
}

// Path renders the location of a validation failure, e.g.
// "stats.humidity.avg" or "items[3].ph". It returns "" for a failure at the
// root or for errors that did not come from this package.
func Path(err error) string {
	var seg segment
	if !errors.As(err, &seg) {
		return ""
	}
	var b strings.Builder
	for seg != nil {
		part := seg.segment()
		if b.Len() > 0 && !strings.HasPrefix(part, "[") {
			b.WriteByte('.')
		}
		b.WriteString(part)
		next, ok := seg.cause().(segment)
		if !ok {
			break
		}
		seg = next
	}
	return b.String()
}

// IsValidationError reports whether err carries a schema failure.
func IsValidationError(err error) bool {
	var tm *TypeMismatch
	return errors.As(err, &tm)
}
