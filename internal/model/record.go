package model

import (
	"encoding/json"
	"sort"
	"strconv"
)

// PeriodField is the record field holding the native period key.
const PeriodField = "period"

// Record is one flat observation as decoded from a dataset payload: a
// period key, zero or more dimension values, and metric fields that may be
// null. Records are never mutated after decoding.
type Record map[string]any

// Period returns the record's native period key, or "" when absent.
func (r Record) Period() string {
	s, _ := r[PeriodField].(string)
	return s
}

// Number returns field coerced to a Number.
func (r Record) Number(field string) Number {
	return ToNumber(r[field])
}

// Text returns field as a string. Numeric dimension values are formatted
// without exponent; null and absent fields yield "".
func (r Record) Text(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
