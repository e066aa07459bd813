package analyze_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/derickschaefer/atlas/internal/analyze"
	"github.com/derickschaefer/atlas/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// monthly builds a monthly column starting at year/month. NaN becomes null.
func monthly(year, month int, values ...float64) []analyze.Point {
	out := make([]analyze.Point, len(values))
	for i, v := range values {
		m := month - 1 + i
		out[i] = analyze.Point{
			Period: fmt.Sprintf("%04d-%02d", year+m/12, m%12+1),
			Value:  model.Num(v),
		}
	}
	return out
}

// annual builds a yearly column starting at startYear.
func annual(startYear int, values ...float64) []analyze.Point {
	out := make([]analyze.Point, len(values))
	for i, v := range values {
		out[i] = analyze.Point{Period: fmt.Sprintf("%d", startYear+i), Value: model.Num(v)}
	}
	return out
}

func approxEqual(n model.Number, want, tol float64) bool {
	return n.Valid && math.Abs(n.Value-want) <= tol
}

var nan = math.NaN()

// ─── Column ───────────────────────────────────────────────────────────────────

func TestColumn(t *testing.T) {
	rows := []model.Row{
		{Period: "2024-Q1", Values: map[string]model.Number{"sales": model.Num(3)}},
		{Period: "2024-Q2", Values: map[string]model.Number{"cost": model.Num(1)}},
	}
	pts := analyze.Column(rows, "sales")
	if len(pts) != 2 {
		t.Fatalf("expected 2 points, got %d", len(pts))
	}
	if pts[0].Period != "2024-Q1" || !approxEqual(pts[0].Value, 3, 0) {
		t.Errorf("first point = %+v", pts[0])
	}
	if pts[1].Value.Valid {
		t.Errorf("absent field should be null, got %+v", pts[1].Value)
	}
}

// ─── Summarize ────────────────────────────────────────────────────────────────

func TestSummarizeBasicCounts(t *testing.T) {
	s := analyze.Summarize("sales", monthly(2020, 1, 1.0, 2.0, nan, 4.0, 5.0))

	if s.Field != "sales" {
		t.Errorf("Field: expected sales, got %q", s.Field)
	}
	if s.Count != 5 {
		t.Errorf("Count: expected 5, got %d", s.Count)
	}
	if s.Missing != 1 {
		t.Errorf("Missing: expected 1, got %d", s.Missing)
	}
	if math.Abs(s.MissingPct-20.0) > 1e-9 {
		t.Errorf("MissingPct: expected 20.0, got %g", s.MissingPct)
	}
}

func TestSummarizeMeanAndStd(t *testing.T) {
	s := analyze.Summarize("x", monthly(2020, 1, 1.0, 2.0, 3.0, 4.0, 5.0))

	if !approxEqual(s.Mean, 3.0, 1e-9) {
		t.Errorf("Mean: expected 3.0, got %v", s.Mean)
	}
	// Sample std of [1,2,3,4,5] = sqrt(2.5) ≈ 1.5811
	if !approxEqual(s.Std, math.Sqrt(2.5), 1e-6) {
		t.Errorf("Std: expected %g, got %v", math.Sqrt(2.5), s.Std)
	}
}

func TestSummarizeMinMaxMedian(t *testing.T) {
	s := analyze.Summarize("x", monthly(2020, 1, 5.0, 2.0, 8.0, 1.0, 9.0, 3.0))

	if !approxEqual(s.Min, 1.0, 1e-9) || !approxEqual(s.Max, 9.0, 1e-9) {
		t.Errorf("Min/Max: got %v/%v", s.Min, s.Max)
	}
	// Even count: median of [1,2,3,5,8,9] = 4
	if !approxEqual(s.Median, 4.0, 1e-9) {
		t.Errorf("Median: expected 4.0, got %v", s.Median)
	}
}

func TestSummarizePercentiles(t *testing.T) {
	s := analyze.Summarize("x", monthly(2020, 1, 1.0, 2.0, 3.0, 4.0, 5.0))

	if !approxEqual(s.P25, 2.0, 1e-9) {
		t.Errorf("P25: expected 2.0, got %v", s.P25)
	}
	if !approxEqual(s.P75, 4.0, 1e-9) {
		t.Errorf("P75: expected 4.0, got %v", s.P75)
	}
}

func TestSummarizeFirstLast(t *testing.T) {
	// First and last are the first/last non-null in period order
	s := analyze.Summarize("x", monthly(2020, 1, nan, 10.0, 20.0, nan))

	if !approxEqual(s.First, 10.0, 1e-9) || s.FirstPeriod != "2020-02" {
		t.Errorf("First: expected 10.0 at 2020-02, got %v at %s", s.First, s.FirstPeriod)
	}
	if !approxEqual(s.Last, 20.0, 1e-9) || s.LastPeriod != "2020-03" {
		t.Errorf("Last: expected 20.0 at 2020-03, got %v at %s", s.Last, s.LastPeriod)
	}
}

func TestSummarizeChange(t *testing.T) {
	s := analyze.Summarize("x", monthly(2020, 1, 100.0, 110.0, 120.0, 130.0))

	if !approxEqual(s.Change, 30.0, 1e-9) {
		t.Errorf("Change: expected 30.0, got %v", s.Change)
	}
	if !approxEqual(s.ChangePct, 30.0, 1e-9) {
		t.Errorf("ChangePct: expected 30.0%%, got %v", s.ChangePct)
	}
}

func TestSummarizeChangeZeroFirst(t *testing.T) {
	s := analyze.Summarize("x", monthly(2020, 1, 0.0, 10.0, 20.0))
	if s.ChangePct.Valid {
		t.Errorf("ChangePct: expected null when First=0, got %v", s.ChangePct)
	}
	if !approxEqual(s.Change, 20.0, 1e-9) {
		t.Errorf("Change: expected 20.0, got %v", s.Change)
	}
}

func TestSummarizeSkew(t *testing.T) {
	s := analyze.Summarize("x", monthly(2020, 1, 1.0, 2.0, 3.0, 4.0, 5.0))
	if !approxEqual(s.Skew, 0.0, 1e-9) {
		t.Errorf("Skew of symmetric column: expected 0.0, got %v", s.Skew)
	}

	skewed := analyze.Summarize("x", monthly(2020, 1, 1.0, 1.0, 1.0, 1.0, 100.0))
	if !skewed.Skew.Valid || skewed.Skew.Value <= 0 {
		t.Errorf("Right-skewed column should have positive skew, got %v", skewed.Skew)
	}
}

func TestSummarizeNullsExcludedFromStats(t *testing.T) {
	clean := analyze.Summarize("a", monthly(2020, 1, 1.0, 2.0, 3.0))
	gappy := analyze.Summarize("b", monthly(2020, 1, 1.0, nan, 2.0, nan, 3.0))

	if clean.Mean != gappy.Mean || clean.Min != gappy.Min || clean.Max != gappy.Max {
		t.Errorf("nulls should not affect stats: %+v vs %+v", clean, gappy)
	}
	if gappy.Count-gappy.Missing != 3 {
		t.Errorf("valid count: expected 3, got %d", gappy.Count-gappy.Missing)
	}
}

func TestSummarizeEmptyInput(t *testing.T) {
	s := analyze.Summarize("x", nil)
	if s.Count != 0 || s.Mean.Valid {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

func TestSummarizeAllNull(t *testing.T) {
	s := analyze.Summarize("x", monthly(2020, 1, nan, nan, nan))

	if s.Count != 3 || s.Missing != 3 {
		t.Errorf("Count/Missing: expected 3/3, got %d/%d", s.Count, s.Missing)
	}
	if math.Abs(s.MissingPct-100.0) > 1e-9 {
		t.Errorf("MissingPct: expected 100.0, got %g", s.MissingPct)
	}
	for name, n := range map[string]model.Number{"mean": s.Mean, "min": s.Min, "first": s.First, "change": s.Change} {
		if n.Valid {
			t.Errorf("%s: expected null for all-null input, got %v", name, n)
		}
	}
}

func TestSummarizeSingleValue(t *testing.T) {
	s := analyze.Summarize("x", monthly(2020, 1, 42.0))

	if !approxEqual(s.Mean, 42.0, 1e-9) || !approxEqual(s.Min, 42.0, 1e-9) || !approxEqual(s.Max, 42.0, 1e-9) {
		t.Errorf("single value stats: %+v", s)
	}
	if !approxEqual(s.Std, 0.0, 1e-9) {
		t.Errorf("Std: expected 0.0 for single value, got %v", s.Std)
	}
}

func TestSummaryTable(t *testing.T) {
	s := analyze.Summarize("sales", monthly(2020, 1, 1.0, nan, 3.0))
	tbl := s.Table()
	if len(tbl.Columns) != 2 {
		t.Fatalf("expected STAT/VALUE columns, got %v", tbl.Columns)
	}
	got := map[string]string{}
	for _, r := range tbl.Rows {
		got[r[0]] = r[1]
	}
	if got["mean"] != "2" {
		t.Errorf("mean = %q", got["mean"])
	}
	if got["first"] != "1 (2020-01)" {
		t.Errorf("first = %q", got["first"])
	}
	if got["missing"] != "1 (33.3%)" {
		t.Errorf("missing = %q", got["missing"])
	}
}

// ─── Trend ────────────────────────────────────────────────────────────────────

func TestTrendLinearUpward(t *testing.T) {
	tr, err := analyze.Trend("x", annual(2010, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10), analyze.TrendLinear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Direction != "up" {
		t.Errorf("Direction: expected up, got %q", tr.Direction)
	}
	// Leap years make the x spacing uneven, so R² is close to but not exactly 1
	if tr.R2 < 0.999 {
		t.Errorf("R2: expected ~1.0 for linear column, got %g", tr.R2)
	}
	if tr.Points != 10 {
		t.Errorf("Points: expected 10, got %d", tr.Points)
	}
}

func TestTrendLinearDownward(t *testing.T) {
	tr, err := analyze.Trend("x", annual(2010, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1), analyze.TrendLinear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Direction != "down" || tr.SlopePerYear >= 0 {
		t.Errorf("expected downward trend, got %+v", tr)
	}
}

func TestTrendFlat(t *testing.T) {
	tr, err := analyze.Trend("x", annual(2010, 5, 5, 5, 5, 5), analyze.TrendLinear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Direction != "flat" {
		t.Errorf("Direction: expected flat for constant column, got %q", tr.Direction)
	}
}

func TestTrendR2Range(t *testing.T) {
	pts := monthly(2020, 1, 3.5, 4.4, 14.7, 13.3, 11.1, 8.4, 6.9, 6.0, 6.9, 6.7, 6.4, 6.7)
	for _, m := range []analyze.TrendMethod{analyze.TrendLinear, analyze.TrendTheilSen} {
		tr, err := analyze.Trend("x", pts, m)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", m, err)
		}
		if tr.R2 > 1 {
			t.Errorf("%s: R2 must not exceed 1, got %g", m, tr.R2)
		}
	}
}

func TestTrendSlopePerYearConsistent(t *testing.T) {
	tr, err := analyze.Trend("x", annual(2010, 1, 2, 3, 4, 5), analyze.TrendLinear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(tr.SlopePerYear-tr.Slope*365.25) > 1e-6 {
		t.Errorf("SlopePerYear: expected %g, got %g", tr.Slope*365.25, tr.SlopePerYear)
	}
}

func TestTrendQuarterlyUsesCalendarSpacing(t *testing.T) {
	pts := []analyze.Point{
		{Period: "2023-Q1", Value: model.Num(1)},
		{Period: "2023-Q2", Value: model.Num(2)},
		{Period: "2023-Q3", Value: model.Num(3)},
		{Period: "2023-Q4", Value: model.Num(4)},
		{Period: "2024-Q1", Value: model.Num(5)},
	}
	tr, err := analyze.Trend("x", pts, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One unit per quarter is roughly four units per year
	if tr.SlopePerYear < 3.9 || tr.SlopePerYear > 4.1 {
		t.Errorf("SlopePerYear: expected ~4, got %g", tr.SlopePerYear)
	}
}

func TestTrendNullsExcluded(t *testing.T) {
	tr, err := analyze.Trend("x", annual(2010, 1, nan, 3, nan, 5), analyze.TrendLinear)
	if err != nil {
		t.Fatalf("unexpected error with gaps: %v", err)
	}
	if tr.Direction != "up" || tr.Points != 3 {
		t.Errorf("expected up over 3 points, got %+v", tr)
	}
}

func TestTrendTooFewPoints(t *testing.T) {
	cases := map[string][]analyze.Point{
		"single":         monthly(2020, 1, 5.0),
		"one after null": monthly(2020, 1, nan, 5.0),
		"all null":       monthly(2020, 1, nan, nan, nan),
		"bad periods":    {{Period: "soon", Value: model.Num(1)}, {Period: "later", Value: model.Num(2)}},
	}
	for name, pts := range cases {
		if _, err := analyze.Trend("x", pts, analyze.TrendLinear); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestTrendMethodPreserved(t *testing.T) {
	tr, err := analyze.Trend("MYFIELD", annual(2010, 1, 2, 3, 4, 5), analyze.TrendTheilSen)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Method != analyze.TrendTheilSen || tr.Field != "MYFIELD" {
		t.Errorf("expected theil-sen on MYFIELD, got %q on %q", tr.Method, tr.Field)
	}
}

func TestParseTrendMethod(t *testing.T) {
	if m, err := analyze.ParseTrendMethod(""); err != nil || m != analyze.TrendLinear {
		t.Errorf("empty: got %q, %v", m, err)
	}
	if m, err := analyze.ParseTrendMethod("theil-sen"); err != nil || m != analyze.TrendTheilSen {
		t.Errorf("theil-sen: got %q, %v", m, err)
	}
	if _, err := analyze.ParseTrendMethod("loess"); err == nil {
		t.Error("expected error for unknown method")
	}
}

// ─── Theil-Sen ────────────────────────────────────────────────────────────────

func TestTrendTheilSenRobustToOutlier(t *testing.T) {
	// One massive outlier shouldn't flip the direction of a clear uptrend
	pts := annual(2010, 1, 2, 3, -1000, 5, 6, 7, 8, 9, 10)
	tr, err := analyze.Trend("x", pts, analyze.TrendTheilSen)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Direction != "up" {
		t.Errorf("Theil-Sen should be robust to outlier; direction=%q", tr.Direction)
	}
}

// ─── Composition ──────────────────────────────────────────────────────────────

func TestSummarizeThenTrendDirection(t *testing.T) {
	pts := annual(2010, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100)
	s := analyze.Summarize("x", pts)
	tr, err := analyze.Trend("x", pts, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if !s.Change.Valid || s.Change.Value <= 0 {
		t.Errorf("Summary.Change should be positive for upward column, got %v", s.Change)
	}
	if tr.Direction != "up" {
		t.Errorf("Trend.Direction should be up, got %q", tr.Direction)
	}
}
