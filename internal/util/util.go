// Package util provides shared helpers: list parsing, value formatting,
// byte sizes and error aggregation.
package util

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/derickschaefer/atlas/internal/model"
)

// ─── List Parsing ─────────────────────────────────────────────────────────────

// SplitList splits a comma- or whitespace-separated flag value into trimmed,
// non-empty items. Order is preserved and duplicates are kept.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ─── Value Formatting ─────────────────────────────────────────────────────────

// FormatNumber formats n for plain-text output, showing "." for null.
func FormatNumber(n model.Number) string {
	if !n.Valid {
		return "."
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// HumanBytes renders a byte count as B, KB or MB.
func HumanBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// ─── Error Helpers ────────────────────────────────────────────────────────────

// MultiError collects multiple errors and presents them as one.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Len reports how many errors were collected.
func (m *MultiError) Len() int { return len(m.Errors) }

func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

func (m *MultiError) Error() string {
	msgs := make([]string, len(m.Errors))
	for i, e := range m.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error { return m.Errors }

// Strings returns each collected error message.
func (m *MultiError) Strings() []string {
	out := make([]string, len(m.Errors))
	for i, e := range m.Errors {
		out[i] = e.Error()
	}
	return out
}
