package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a nullable metric value. The zero value is null ("value
// unknown"), which is distinct from a valid zero. A valid Number is never
// NaN or infinite.
type Number struct {
	Value float64
	Valid bool
}

// Null is the unknown value.
var Null = Number{}

// Num wraps v. NaN and ±Inf become null.
func Num(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Null
	}
	return Number{Value: v, Valid: true}
}

// Add returns n + o where null contributes nothing. The result is null only
// when both operands are null.
func (n Number) Add(o Number) Number {
	switch {
	case !o.Valid:
		return n
	case !n.Valid:
		return o
	}
	return Num(n.Value + o.Value)
}

// Float returns the value and whether it is valid.
func (n Number) Float() (float64, bool) { return n.Value, n.Valid }

// Ptr returns a pointer to the value, or nil when null.
func (n Number) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// MarshalJSON encodes null or the number.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON decodes null, a number, or a numeric string. Anything else
// decodes as null.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = Null
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	*n = ToNumber(v)
	return nil
}

// missingTokens are string spellings of "no value" in published payloads.
var missingTokens = map[string]bool{
	"": true, ".": true, "-": true, "..": true, "n/a": true, "na": true, "null": true, "nan": true,
}

// ToNumber coerces a decoded JSON value to a Number. Non-numeric input is
// null, never NaN.
func ToNumber(v any) Number {
	switch x := v.(type) {
	case nil:
		return Null
	case Number:
		return x
	case float64:
		return Num(x)
	case float32:
		return Num(float64(x))
	case int:
		return Num(float64(x))
	case int64:
		return Num(float64(x))
	case int32:
		return Num(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Null
		}
		return Num(f)
	case *float64:
		if x == nil {
			return Null
		}
		return Num(*x)
	case string:
		s := strings.TrimSpace(x)
		if missingTokens[strings.ToLower(s)] {
			return Null
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null
		}
		return Num(f)
	}
	return Null
}
