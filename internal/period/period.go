// Package period defines the time granularities atlas understands and the
// string keys that identify one time bucket at each of them.
//
// Key formats:
//
//	daily      2024-01-15
//	monthly    2024-01
//	quarterly  2024-Q1
//	yearly     2024
//
// Within one granularity, lexicographic order of keys equals chronological
// order. Every consumer sorts keys as strings instead of parsing dates.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ─── Granularity ──────────────────────────────────────────────────────────────

// Granularity is the width of a single period.
type Granularity string

const (
	Daily     Granularity = "daily"
	Monthly   Granularity = "monthly"
	Quarterly Granularity = "quarterly"
	Yearly    Granularity = "yearly"
)

// All lists every granularity ordered fine → coarse.
var All = []Granularity{Daily, Monthly, Quarterly, Yearly}

var (
	// ErrFinerGranularity is returned when a key would have to be mapped to a
	// granularity finer than its own. Precision is never fabricated.
	ErrFinerGranularity = errors.New("target granularity is finer than the period granularity")

	// ErrInvalidPeriod is returned for keys that match none of the formats.
	ErrInvalidPeriod = errors.New("invalid period key")

	// ErrUnknownGranularity is returned for unrecognised granularity names.
	ErrUnknownGranularity = errors.New("unknown granularity")
)

// granularityAliases maps CLI- and payload-friendly names to granularities.
var granularityAliases = map[string]Granularity{
	"d": Daily, "day": Daily, "daily": Daily,
	"m": Monthly, "month": Monthly, "monthly": Monthly,
	"q": Quarterly, "quarter": Quarterly, "quarterly": Quarterly,
	"y": Yearly, "a": Yearly, "year": Yearly, "yearly": Yearly, "annual": Yearly,
}

// ParseGranularity resolves a granularity name or alias.
func ParseGranularity(s string) (Granularity, error) {
	if g, ok := granularityAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return g, nil
	}
	return "", fmt.Errorf("%w %q (use daily, monthly, quarterly or yearly)", ErrUnknownGranularity, s)
}

func (g Granularity) rank() int {
	switch g {
	case Daily:
		return 0
	case Monthly:
		return 1
	case Quarterly:
		return 2
	case Yearly:
		return 3
	}
	return -1
}

// Valid reports whether g is one of the four supported granularities.
func (g Granularity) Valid() bool { return g.rank() >= 0 }

// FinerThan reports whether g is strictly finer than o.
func (g Granularity) FinerThan(o Granularity) bool { return g.rank() < o.rank() }

// Unit returns the singular unit noun ("day", "month", "quarter", "year").
func (g Granularity) Unit() string {
	switch g {
	case Daily:
		return "day"
	case Monthly:
		return "month"
	case Quarterly:
		return "quarter"
	case Yearly:
		return "year"
	}
	return string(g)
}

// GroupingOptions returns the granularities a dataset at native granularity
// can be grouped to: native itself and everything coarser, fine → coarse.
func GroupingOptions(native Granularity) []Granularity {
	if !native.Valid() {
		return nil
	}
	out := make([]Granularity, 0, len(All))
	for _, g := range All {
		if !g.FinerThan(native) {
			out = append(out, g)
		}
	}
	return out
}

// ─── Keys ─────────────────────────────────────────────────────────────────────

// Key is a parsed period key. Fields below the key's granularity are zero.
type Key struct {
	Granularity Granularity
	Year        int
	Quarter     int // quarterly keys only
	Month       int // monthly and daily keys
	Day         int // daily keys only
}

// Parse parses a period key in any of the four formats.
func Parse(s string) (Key, error) {
	bad := func() (Key, error) { return Key{}, fmt.Errorf("%w %q", ErrInvalidPeriod, s) }

	switch {
	case len(s) == 4:
		y, ok := digits(s)
		if !ok {
			return bad()
		}
		return Key{Granularity: Yearly, Year: y}, nil

	case len(s) == 7 && s[4] == '-' && (s[5] == 'Q' || s[5] == 'q'):
		y, ok := digits(s[:4])
		q, ok2 := digits(s[6:])
		if !ok || !ok2 || q < 1 || q > 4 {
			return bad()
		}
		return Key{Granularity: Quarterly, Year: y, Quarter: q}, nil

	case len(s) == 7 && s[4] == '-':
		y, ok := digits(s[:4])
		m, ok2 := digits(s[5:])
		if !ok || !ok2 || m < 1 || m > 12 {
			return bad()
		}
		return Key{Granularity: Monthly, Year: y, Month: m}, nil

	case len(s) == 10:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return bad()
		}
		return Key{Granularity: Daily, Year: t.Year(), Month: int(t.Month()), Day: t.Day()}, nil
	}
	return bad()
}

// Detect returns the granularity of a key.
func Detect(s string) (Granularity, error) {
	k, err := Parse(s)
	if err != nil {
		return "", err
	}
	return k.Granularity, nil
}

// String formats the key canonically.
func (k Key) String() string {
	switch k.Granularity {
	case Daily:
		return fmt.Sprintf("%04d-%02d-%02d", k.Year, k.Month, k.Day)
	case Monthly:
		return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
	case Quarterly:
		return fmt.Sprintf("%04d-Q%d", k.Year, k.Quarter)
	case Yearly:
		return fmt.Sprintf("%04d", k.Year)
	}
	return ""
}

// Truncate maps k to the bucket containing it at target granularity.
func (k Key) Truncate(target Granularity) (Key, error) {
	if !target.Valid() {
		return Key{}, fmt.Errorf("%w %q", ErrUnknownGranularity, target)
	}
	if target.FinerThan(k.Granularity) {
		return Key{}, fmt.Errorf("%w: cannot map %s key %s to %s",
			ErrFinerGranularity, k.Granularity, k, target)
	}
	switch target {
	case Yearly:
		return Key{Granularity: Yearly, Year: k.Year}, nil
	case Quarterly:
		q := k.Quarter
		if k.Granularity != Quarterly {
			q = (k.Month-1)/3 + 1
		}
		return Key{Granularity: Quarterly, Year: k.Year, Quarter: q}, nil
	case Monthly:
		return Key{Granularity: Monthly, Year: k.Year, Month: k.Month}, nil
	}
	return k, nil
}

// Start returns the first instant of the period (UTC midnight).
func (k Key) Start() time.Time {
	switch k.Granularity {
	case Daily:
		return time.Date(k.Year, time.Month(k.Month), k.Day, 0, 0, 0, 0, time.UTC)
	case Monthly:
		return time.Date(k.Year, time.Month(k.Month), 1, 0, 0, 0, 0, time.UTC)
	case Quarterly:
		return time.Date(k.Year, time.Month((k.Quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(k.Year, 1, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant after the period.
func (k Key) End() time.Time {
	return k.Shift(1).Start()
}

// Shift moves the key n periods forward (negative n moves backward).
func (k Key) Shift(n int) Key {
	t := k.Start()
	switch k.Granularity {
	case Daily:
		t = t.AddDate(0, 0, n)
	case Monthly:
		t = t.AddDate(0, n, 0)
	case Quarterly:
		t = t.AddDate(0, 3*n, 0)
	default:
		t = t.AddDate(n, 0, 0)
	}
	return fromTime(t, k.Granularity)
}

// Span returns how many native-granularity periods the bucket k contains:
// 3 months in a quarter, 28–31 days in a month, 365 or 366 days in a year.
// Returns 0 when native is coarser than the bucket.
func Span(k Key, native Granularity) int {
	if !native.Valid() || k.Granularity.FinerThan(native) {
		return 0
	}
	if native == k.Granularity {
		return 1
	}
	switch native {
	case Daily:
		return int(k.End().Sub(k.Start()).Hours() / 24)
	case Monthly:
		if k.Granularity == Quarterly {
			return 3
		}
		return 12
	case Quarterly:
		return 4
	}
	return 1
}

// Group maps a key string to its containing key at target granularity.
func Group(key string, target Granularity) (string, error) {
	k, err := Parse(key)
	if err != nil {
		return "", err
	}
	t, err := k.Truncate(target)
	if err != nil {
		return "", err
	}
	return t.String(), nil
}

// Shift moves a key string n periods along its own granularity.
func Shift(key string, n int) (string, error) {
	k, err := Parse(key)
	if err != nil {
		return "", err
	}
	return k.Shift(n).String(), nil
}

func fromTime(t time.Time, g Granularity) Key {
	k := Key{Granularity: g, Year: t.Year()}
	switch g {
	case Daily:
		k.Month, k.Day = int(t.Month()), t.Day()
	case Monthly:
		k.Month = int(t.Month())
	case Quarterly:
		k.Quarter = (int(t.Month())-1)/3 + 1
	}
	return k
}

func digits(s string) (int, bool) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
