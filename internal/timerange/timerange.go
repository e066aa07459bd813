// Package timerange resolves trailing-window selections ("last 12 months",
// "all") against a dataset's time coverage. Datasets are historical
// snapshots, so windows are always anchored on the most recent period
// present in the data, never on the wall clock.
package timerange

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/derickschaefer/atlas/internal/period"
)

// Coverage describes the periods present in a dataset at its native
// granularity.
type Coverage struct {
	Granularity period.Granularity `json:"granularity"`
	First       string             `json:"first"`
	Last        string             `json:"last"`
	Count       int                `json:"count"`
}

// FromPeriods builds a Coverage from distinct period keys sorted ascending.
func FromPeriods(g period.Granularity, sorted []string) Coverage {
	c := Coverage{Granularity: g, Count: len(sorted)}
	if len(sorted) > 0 {
		c.First = sorted[0]
		c.Last = sorted[len(sorted)-1]
	}
	return c
}

// ─── Options ──────────────────────────────────────────────────────────────────

// Option is a trailing window size in periods. A Count of zero selects the
// full range.
type Option struct {
	Count int    `json:"count"`
	Label string `json:"label"`
}

// All is the unbounded option.
var All = Option{Label: "All"}

// Last returns an option for the n most recent periods. n <= 0 yields All.
func Last(n int) Option {
	if n <= 0 {
		return All
	}
	return Option{Count: n}
}

// IsAll reports whether o selects every period.
func (o Option) IsAll() bool { return o.Count <= 0 }

// String returns the CLI form of the option: "all" or the count.
func (o Option) String() string {
	if o.IsAll() {
		return "all"
	}
	return strconv.Itoa(o.Count)
}

// ParseOption parses "all", "" or a positive count.
func ParseOption(s string) (Option, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "all", "max":
		return All, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Option{}, fmt.Errorf("invalid time range %q: expected a period count or \"all\"", s)
	}
	return Last(n), nil
}

// ladders holds the trailing-window sizes offered per granularity, ascending.
var ladders = map[period.Granularity][]int{
	period.Daily:     {7, 30, 90, 180, 365},
	period.Monthly:   {12, 24, 36, 60, 120},
	period.Quarterly: {4, 8, 12, 20, 40},
	period.Yearly:    {5, 10, 20, 50},
}

// Options returns the selectable windows for c: every ladder step smaller
// than the number of periods present, followed by All.
func Options(c Coverage) []Option {
	steps := ladders[c.Granularity]
	out := make([]Option, 0, len(steps)+1)
	for _, n := range steps {
		if n >= c.Count {
			break
		}
		out = append(out, Option{Count: n, Label: label(n, c.Granularity)})
	}
	return append(out, All)
}

func label(n int, g period.Granularity) string {
	unit := g.Unit()
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("Last %d %s", n, unit)
}

// ─── Resolution ───────────────────────────────────────────────────────────────

// Tail returns the last o.Count entries of the distinct, ascending period
// keys in sorted. The input is not modified.
func Tail(sorted []string, o Option) []string {
	if o.IsAll() || o.Count >= len(sorted) {
		return sorted
	}
	return sorted[len(sorted)-o.Count:]
}

// Window returns the literal first and last period keys of option o,
// counted back from c.Last along the calendar and clamped to c.First.
// An empty coverage yields empty boundaries.
func Window(c Coverage, o Option) (start, end string, err error) {
	if c.Last == "" {
		return "", "", nil
	}
	if o.IsAll() || o.Count >= c.Count {
		return c.First, c.Last, nil
	}
	start, err = period.Shift(c.Last, -(o.Count - 1))
	if err != nil {
		return "", "", fmt.Errorf("window: %w", err)
	}
	if c.First != "" && start < c.First {
		start = c.First
	}
	return start, c.Last, nil
}
