package schema

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readingSchema() *Schema {
	return Object(
		F("timestamp", String()),
		F("temperature", CoercedNumber()),
		F("humidity", CoercedNumber()),
		F("tds", CoercedNumber()),
		F("ph", CoercedNumber()),
	)
}

func statSchema() *Schema {
	return Object(
		F("min", Number().Nullable()),
		F("max", Number().Nullable()),
		F("avg", Number().Nullable()),
	)
}

func summarySchema() *Schema {
	return Object(
		F("range", String()),
		F("count", Number()),
		F("stats", Object(
			F("temperature", statSchema()),
			F("humidity", statSchema()),
			F("tds", statSchema()),
			F("ph", statSchema()),
		)),
	)
}

func stat(min, max, avg any) map[string]any {
	return map[string]any{"min": min, "max": max, "avg": avg}
}

func validSummary() map[string]any {
	return map[string]any{
		"range": "hour",
		"count": float64(12),
		"stats": map[string]any{
			"temperature": stat(25.1, 29.4, 27.0),
			"humidity":    stat(60.0, 75.0, 70.0),
			"tds":         stat(900.0, 1100.0, 1000.0),
			"ph":          stat(nil, nil, nil),
		},
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantErr bool
	}{
		{name: "plain string", input: "abc"},
		{name: "empty string", input: ""},
		{name: "number", input: 1.0, wantErr: true},
		{name: "null", input: nil, wantErr: true},
		{name: "bool", input: true, wantErr: true},
		{name: "object", input: map[string]any{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := String().Parse(tt.input)
			if tt.wantErr {
				var tm *TypeMismatch
				require.True(t, errors.As(err, &tm))
				assert.Equal(t, "string", tm.Expected)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, out)
		})
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    float64
		wantErr bool
	}{
		{name: "float", input: 6.2, want: 6.2},
		{name: "int", input: 7, want: 7},
		{name: "int64", input: int64(-3), want: -3},
		{name: "json number", input: json.Number("1200.5"), want: 1200.5},
		{name: "numeric string", input: "42", wantErr: true},
		{name: "NaN", input: math.NaN(), wantErr: true},
		{name: "infinity", input: math.Inf(1), wantErr: true},
		{name: "null", input: nil, wantErr: true},
		{name: "bool", input: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Number().Parse(tt.input)
			if tt.wantErr {
				var tm *TypeMismatch
				require.True(t, errors.As(err, &tm))
				assert.Equal(t, "number", tm.Expected)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestCoercedNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    float64
		wantErr bool
	}{
		{name: "number", input: 27.5, want: 27.5},
		{name: "decimal string", input: "42.5", want: 42.5},
		{name: "padded string", input: "  6.1\n", want: 6.1},
		{name: "exponent string", input: "1e3", want: 1000},
		{name: "leading dot", input: ".5", want: 0.5},
		{name: "signed string", input: "-12", want: -12},
		{name: "hex string", input: "0x1A", want: 26},
		{name: "binary string", input: "0b101", want: 5},
		{name: "empty string", input: "", want: 0},
		{name: "whitespace string", input: "   ", want: 0},
		{name: "byte order mark", input: "\uFEFF7.2", want: 7.2},
		{name: "no-break and ideographic space", input: "\u00A06.5\u3000", want: 6.5},
		{name: "line separator", input: "5\u2028", want: 5},
		{name: "true", input: true, want: 1},
		{name: "false", input: false, want: 0},
		{name: "null", input: nil, want: 0},
		{name: "letters", input: "abc", wantErr: true},
		{name: "trailing garbage", input: "12px", wantErr: true},
		{name: "infinity string", input: "Infinity", wantErr: true},
		{name: "NaN string", input: "NaN", wantErr: true},
		{name: "overflow", input: "1e400", wantErr: true},
		{name: "signed hex", input: "-0x10", wantErr: true},
		{name: "next line is not trimmed", input: "\u00856.1", wantErr: true},
		{name: "object", input: map[string]any{}, wantErr: true},
		{name: "array", input: []any{1.0}, wantErr: true},
		{name: "NaN value", input: math.NaN(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := CoercedNumber().Parse(tt.input)
			if tt.wantErr {
				var tm *TypeMismatch
				require.True(t, errors.As(err, &tm))
				assert.Equal(t, "coercible number", tm.Expected)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, out, 1e-9)
		})
	}
}

func TestNullable(t *testing.T) {
	s := Nullable(Number())

	out, err := s.Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = s.Parse(3.5)
	require.NoError(t, err)
	assert.Equal(t, 3.5, out)

	_, err = s.Parse("3.5")
	var tm *TypeMismatch
	require.True(t, errors.As(err, &tm))
	assert.Equal(t, "number", tm.Expected)
	assert.Equal(t, "string", tm.Got)
}

func TestObject_ValidReading(t *testing.T) {
	input := map[string]any{
		"timestamp":   "2024-05-01T10:00:00Z",
		"temperature": "27.5",
		"humidity":    70.0,
		"tds":         "1000",
		"ph":          6.2,
		"water_temp":  22.0,
	}

	out, err := readingSchema().Parse(input)
	require.NoError(t, err)

	obj := out.(map[string]any)
	assert.Equal(t, "2024-05-01T10:00:00Z", obj["timestamp"])
	assert.Equal(t, 27.5, obj["temperature"])
	assert.Equal(t, 70.0, obj["humidity"])
	assert.Equal(t, 1000.0, obj["tds"])
	assert.Equal(t, 6.2, obj["ph"])
	assert.NotContains(t, obj, "water_temp")
	assert.Len(t, obj, 5)
}

func TestObject_FirstFailingFieldWins(t *testing.T) {
	tests := []struct {
		name      string
		input     map[string]any
		wantField string
		wantGot   string
	}{
		{
			name:      "missing field",
			input:     map[string]any{"timestamp": "t", "temperature": 1.0, "tds": 1.0, "ph": 1.0},
			wantField: "humidity",
			wantGot:   "missing",
		},
		{
			name:      "wrong type",
			input:     map[string]any{"timestamp": 5.0, "temperature": 1.0, "humidity": 1.0, "tds": 1.0, "ph": 1.0},
			wantField: "timestamp",
			wantGot:   "number",
		},
		{
			name:      "two failures reports declaration order",
			input:     map[string]any{"timestamp": "t", "temperature": "hot", "humidity": 1.0, "tds": 1.0, "ph": "acid"},
			wantField: "temperature",
			wantGot:   "string",
		},
		{
			name:      "explicit null is coerced but missing is not",
			input:     map[string]any{"timestamp": "t", "temperature": nil, "humidity": 1.0, "tds": 1.0},
			wantField: "ph",
			wantGot:   "missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readingSchema().Parse(tt.input)
			require.Error(t, err)

			var fm *FieldMismatch
			require.True(t, errors.As(err, &fm))
			assert.Equal(t, tt.wantField, fm.Field)

			var tm *TypeMismatch
			require.True(t, errors.As(err, &tm))
			assert.Equal(t, tt.wantGot, tm.Got)
		})
	}
}

func TestObject_RejectsNonObject(t *testing.T) {
	for _, input := range []any{nil, "x", 1.0, []any{}} {
		_, err := readingSchema().Parse(input)
		var tm *TypeMismatch
		require.True(t, errors.As(err, &tm))
		assert.Equal(t, "object", tm.Expected)
		assert.Equal(t, "", Path(err))
	}
}

func TestArray_ReportsFailingIndex(t *testing.T) {
	good := map[string]any{"timestamp": "t", "temperature": 1.0, "humidity": 1.0, "tds": 1.0, "ph": 1.0}
	bad := map[string]any{"timestamp": "t", "temperature": 1.0, "humidity": 1.0, "tds": 1.0, "ph": "abc"}

	for k := 0; k < 5; k++ {
		items := []any{good, good, good, good, good}
		items[k] = bad
		if k < 4 {
			items[4] = bad
		}

		_, err := Array(readingSchema()).Parse(items)
		require.Error(t, err)

		var am *ArrayItemMismatch
		require.True(t, errors.As(err, &am))
		assert.Equal(t, k, am.Index)
		assert.Equal(t, "["+string(rune('0'+k))+"].ph", Path(err))
	}
}

func TestArray_Empty(t *testing.T) {
	out, err := Array(readingSchema()).Parse([]any{})
	require.NoError(t, err)
	assert.Equal(t, []any{}, out)

	_, err = Array(String()).Parse(map[string]any{})
	var tm *TypeMismatch
	require.True(t, errors.As(err, &tm))
	assert.Equal(t, "array", tm.Expected)
}

func TestSummary_EndToEnd(t *testing.T) {
	input := validSummary()

	out, err := summarySchema().Parse(input)
	require.NoError(t, err)
	assert.Equal(t, input, out)

	again, err := summarySchema().Parse(out)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestSummary_HourPayloadRoundTrip(t *testing.T) {
	input := map[string]any{
		"range": "hour",
		"count": float64(3),
		"stats": map[string]any{
			"temperature": stat(24.0, 30.0, 27.0),
			"humidity":    stat(60.0, 75.0, 68.0),
			"tds":         stat(900.0, 1100.0, 1000.0),
			"ph":          stat(5.9, 6.5, 6.2),
		},
	}

	out, err := summarySchema().Parse(input)
	require.NoError(t, err)
	assert.Equal(t, input, out)

	delete(input["stats"].(map[string]any)["humidity"].(map[string]any), "avg")
	_, err = summarySchema().Parse(input)
	require.Error(t, err)
	assert.Equal(t, "stats.humidity.avg", Path(err))
}

func TestSummary_MissingNestedField(t *testing.T) {
	input := validSummary()
	delete(input["stats"].(map[string]any)["humidity"].(map[string]any), "avg")

	_, err := summarySchema().Parse(input)
	require.Error(t, err)
	assert.Equal(t, "stats.humidity.avg", Path(err))
	assert.Equal(t, "stats.humidity.avg: expected number, got missing", err.Error())
	assert.True(t, IsValidationError(err))
}

func TestParse_Idempotent(t *testing.T) {
	s := Array(readingSchema())
	input := []any{
		map[string]any{"timestamp": "a", "temperature": "25", "humidity": true, "tds": "", "ph": nil},
	}

	first, err := s.Parse(input)
	require.NoError(t, err)
	second, err := s.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPath(t *testing.T) {
	err := &FieldMismatch{Field: "items", Cause: &ArrayItemMismatch{Index: 3, Cause: &FieldMismatch{
		Field: "ph", Cause: &TypeMismatch{Expected: "number", Got: "string"},
	}}}
	assert.Equal(t, "items[3].ph", Path(err))
	assert.Equal(t, "items[3].ph: expected number, got string", err.Error())
	assert.Equal(t, "", Path(errors.New("other")))
	assert.Equal(t, "items[3].ph", Path(errors.Join(errors.New("RESPONSE_INVALID"), err)))
}

func TestSchema_ConcurrentUse(t *testing.T) {
	s := summarySchema()
	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			_, err := s.Parse(validSummary())
			done <- err
		}()
	}
	for i := 0; i < 16; i++ {
		assert.NoError(t, <-done)
	}
}
