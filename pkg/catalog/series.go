package catalog

import (
	"fmt"
	"math"
	"strconv"
)

// DType is the storage type of a column.
type DType string

const (
	TypeString DType = "string"
	TypeInt    DType = "int64"
	TypeFloat  DType = "float64"
	TypeBool   DType = "bool"
)

// ParseDType validates a dtype name read from a metadata sidecar.
func ParseDType(s string) (DType, error) {
	switch DType(s) {
	case TypeString, TypeInt, TypeFloat, TypeBool:
		return DType(s), nil
	}
	return "", fmt.Errorf("unknown dtype %q", s)
}

// Series is a single named column. Values are stored as any with nil
// marking a missing value; non-nil slots always hold the concrete Go type
// for the dtype (string, int64, float64, bool). Float NaN is normalized to
// nil on the way in so that missing has exactly one representation.
type Series struct {
	Name   string
	DType  DType
	Values []any
	Meta   VariableMeta
}

// NewSeries returns an empty series of the given type.
func NewSeries(name string, dtype DType) *Series {
	return &Series{Name: name, DType: dtype}
}

func (s *Series) Len() int { return len(s.Values) }

// IsNull reports whether row i has no value.
func (s *Series) IsNull(i int) bool { return s.Values[i] == nil }

// At returns the raw value at row i, nil when missing.
func (s *Series) At(i int) any { return s.Values[i] }

// Append coerces v to the series dtype and appends it. nil appends a
// missing value.
func (s *Series) Append(v any) error {
	cv, err := coerceValue(s.DType, v)
	if err != nil {
		return fmt.Errorf("column %s: %w", s.Name, err)
	}
	s.Values = append(s.Values, cv)
	return nil
}

// Set coerces v and stores it at row i.
func (s *Series) Set(i int, v any) error {
	cv, err := coerceValue(s.DType, v)
	if err != nil {
		return fmt.Errorf("column %s: %w", s.Name, err)
	}
	s.Values[i] = cv
	return nil
}

// Float returns the value at row i as float64. ok is false for missing
// values and non-numeric dtypes.
func (s *Series) Float(i int) (float64, bool) {
	switch v := s.Values[i].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int returns the value at row i as int64.
func (s *Series) Int(i int) (int64, bool) {
	v, ok := s.Values[i].(int64)
	return v, ok
}

// String returns the value at row i as a string.
func (s *Series) String(i int) (string, bool) {
	v, ok := s.Values[i].(string)
	return v, ok
}

// Bool returns the value at row i as a bool.
func (s *Series) Bool(i int) (bool, bool) {
	v, ok := s.Values[i].(bool)
	return v, ok
}

// NullCount returns the number of missing values.
func (s *Series) NullCount() int {
	n := 0
	for _, v := range s.Values {
		if v == nil {
			n++
		}
	}
	return n
}

// Clone deep-copies the series, values and metadata included.
func (s *Series) Clone() *Series {
	out := &Series{Name: s.Name, DType: s.DType, Meta: s.Meta.Clone()}
	out.Values = make([]any, len(s.Values))
	copy(out.Values, s.Values)
	return out
}

// take returns a new series holding the rows at the given positions.
func (s *Series) take(rows []int) *Series {
	out := &Series{Name: s.Name, DType: s.DType, Meta: s.Meta.Clone()}
	out.Values = make([]any, len(rows))
	for i, r := range rows {
		out.Values[i] = s.Values[r]
	}
	return out
}

// coerceValue normalizes v into the canonical storage type for dtype.
// Numeric widening (int into float columns) is allowed; lossy or
// cross-kind conversions are errors.
func coerceValue(dtype DType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch dtype {
	case TypeString:
		if sv, ok := v.(string); ok {
			return sv, nil
		}
	case TypeInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case float64:
			if n == math.Trunc(n) && !math.IsInf(n, 0) {
				return int64(n), nil
			}
		}
	case TypeFloat:
		switch n := v.(type) {
		case float64:
			if math.IsNaN(n) {
				return nil, nil
			}
			return n, nil
		case float32:
			if math.IsNaN(float64(n)) {
				return nil, nil
			}
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot store %T value %v as %s", v, v, dtype)
}

// InferDType picks the narrowest dtype that can hold every non-nil value.
// All-missing input defaults to string.
func InferDType(values []any) DType {
	sawAny := false
	isInt, isFloat, isBool, isString := true, true, true, true
	for _, v := range values {
		if v == nil {
			continue
		}
		sawAny = true
		switch n := v.(type) {
		case int, int32, int64:
			isBool, isString = false, false
		case float64:
			isBool, isString = false, false
			if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
				isInt = false
			}
		case float32:
			isBool, isString = false, false
			f := float64(n)
			if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
				isInt = false
			}
		case bool:
			isInt, isFloat, isString = false, false, false
		case string:
			isInt, isFloat, isBool = false, false, false
		default:
			isInt, isFloat, isBool, isString = false, false, false, false
		}
	}
	switch {
	case !sawAny:
		return TypeString
	case isBool:
		return TypeBool
	case isInt:
		return TypeInt
	case isFloat:
		return TypeFloat
	case isString:
		return TypeString
	}
	return TypeString
}

// ParseValue converts a raw text token into a value for the dtype. Empty
// text is missing. Used by the CSV readers.
func ParseValue(dtype DType, text string) (any, error) {
	if text == "" {
		return nil, nil
	}
	switch dtype {
	case TypeString:
		return text, nil
	case TypeInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse int %q: %w", text, err)
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", text, err)
		}
		if math.IsNaN(f) {
			return nil, nil
		}
		return f, nil
	case TypeBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("parse bool %q: %w", text, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown dtype %q", dtype)
}

// formatValue renders a value for CSV output. Missing renders as the
// empty string.
func formatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	}
	return fmt.Sprintf("%v", v)
}
