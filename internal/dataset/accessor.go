package dataset

import (
	"fmt"
	"strings"

	"github.com/derickschaefer/atlas/internal/model"
)

// KeyAccessor extracts the stack key (a dimension value) from a record.
// An empty key means the record does not belong to any stack.
type KeyAccessor func(model.Record) string

// ValueAccessor extracts a nullable metric value from a record.
type ValueAccessor func(model.Record) model.Number

// Field reads the named metric field.
func Field(name string) ValueAccessor {
	return func(r model.Record) model.Number { return r.Number(name) }
}

// Dimension reads the named dimension field.
func Dimension(name string) KeyAccessor {
	return func(r model.Record) string { return r.Text(name) }
}

// ─── Grouped value mode ───────────────────────────────────────────────────────

// Mode selects how values falling into the same bucket are combined.
type Mode string

const (
	// Sum adds values; the result is null only when every value is null.
	Sum Mode = "sum"
	// Latest keeps the value of the chronologically last native period in
	// the bucket. Used for point-in-time levels such as headcount.
	Latest Mode = "latest"
)

// ParseMode parses "sum" or "latest". The empty string selects Sum.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Sum:
		return Sum, nil
	case Latest:
		return Latest, nil
	}
	return "", fmt.Errorf("unknown grouped value mode %q (use sum or latest)", s)
}

// accumulator folds the values of one bucket. latest is the null-aware
// sum of every value at the last native period seen, so records sharing
// that period (other sub-dimension values) combine instead of competing.
type accumulator struct {
	sum    model.Number
	latest model.Number
	at     string // native period of latest
	seen   bool
}

func (a *accumulator) add(native string, v model.Number) {
	a.sum = a.sum.Add(v)
	switch {
	case !a.seen || native > a.at:
		a.latest, a.at, a.seen = v, native, true
	case native == a.at:
		a.latest = a.latest.Add(v)
	}
}

func (a *accumulator) value(m Mode) model.Number {
	if m == Latest {
		return a.latest
	}
	return a.sum
}
