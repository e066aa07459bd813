// Package analyze computes statistical summaries and trend analysis over
// one aggregated column of a view. All functions are pure; no I/O.
package analyze

import (
	"fmt"
	"math"
	"sort"

	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/period"
	"github.com/derickschaefer/atlas/internal/util"
)

// Point is one period of a column. Null values count as missing.
type Point struct {
	Period string       `json:"period"`
	Value  model.Number `json:"value"`
}

// Column extracts field from aggregated rows, in row order.
func Column(rows []model.Row, field string) []Point {
	out := make([]Point, len(rows))
	for i, r := range rows {
		out[i] = Point{Period: r.Period, Value: r.Values[field]}
	}
	return out
}

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for a column. Statistics that cannot
// be computed (no valid values, zero first value for ChangePct) are null.
type Summary struct {
	Field       string       `json:"field"`
	Count       int          `json:"count"`       // total periods
	Missing     int          `json:"missing"`     // null count
	MissingPct  float64      `json:"missing_pct"` // percent missing
	Mean        model.Number `json:"mean"`
	Std         model.Number `json:"std"`
	Min         model.Number `json:"min"`
	P25         model.Number `json:"p25"`
	Median      model.Number `json:"median"`
	P75         model.Number `json:"p75"`
	Max         model.Number `json:"max"`
	Skew        model.Number `json:"skew"`
	First       model.Number `json:"first"` // first non-null value
	Last        model.Number `json:"last"`  // last non-null value
	FirstPeriod string       `json:"first_period,omitempty"`
	LastPeriod  string       `json:"last_period,omitempty"`
	Change      model.Number `json:"change"`     // Last - First
	ChangePct   model.Number `json:"change_pct"` // (Last-First)/|First| * 100
}

// Summarize computes descriptive statistics over pts.
// Null values are excluded from all numeric computations but counted.
func Summarize(field string, pts []Point) Summary {
	s := Summary{Field: field, Count: len(pts)}
	if len(pts) == 0 {
		return s
	}

	var vals []float64
	for _, p := range pts {
		if v, ok := p.Value.Float(); ok {
			vals = append(vals, v)
		} else {
			s.Missing++
		}
	}
	s.MissingPct = float64(s.Missing) / float64(s.Count) * 100
	if len(vals) == 0 {
		return s
	}

	// Sort for percentile computation
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	mean := sumF(vals) / float64(len(vals))
	std := stddevF(vals, mean)
	s.Min = model.Num(sorted[0])
	s.Max = model.Num(sorted[len(sorted)-1])
	s.Mean = model.Num(mean)
	s.Std = model.Num(std)
	s.Median = model.Num(percentile(sorted, 50))
	s.P25 = model.Num(percentile(sorted, 25))
	s.P75 = model.Num(percentile(sorted, 75))
	s.Skew = model.Num(skewness(vals, mean, std))

	for _, p := range pts {
		if p.Value.Valid {
			s.First, s.FirstPeriod = p.Value, p.Period
			break
		}
	}
	for i := len(pts) - 1; i >= 0; i-- {
		if pts[i].Value.Valid {
			s.Last, s.LastPeriod = pts[i].Value, pts[i].Period
			break
		}
	}
	s.Change = model.Num(s.Last.Value - s.First.Value)
	if s.First.Value != 0 {
		s.ChangePct = model.Num(s.Change.Value / math.Abs(s.First.Value) * 100)
	}

	return s
}

// Table lays the summary out as statistic/value pairs.
func (s Summary) Table() model.Table {
	t := model.Table{Columns: []string{"STAT", "VALUE"}, Right: []bool{false, true}}
	add := func(k, v string) { t.Rows = append(t.Rows, []string{k, v}) }
	add("field", s.Field)
	add("count", fmt.Sprintf("%d", s.Count))
	add("missing", fmt.Sprintf("%d (%.1f%%)", s.Missing, s.MissingPct))
	for _, kv := range []struct {
		k string
		v model.Number
	}{
		{"mean", s.Mean}, {"std", s.Std}, {"min", s.Min}, {"p25", s.P25},
		{"median", s.Median}, {"p75", s.P75}, {"max", s.Max}, {"skew", s.Skew},
	} {
		add(kv.k, util.FormatNumber(round(kv.v, 6)))
	}
	add("first", periodValue(s.FirstPeriod, s.First))
	add("last", periodValue(s.LastPeriod, s.Last))
	add("change", util.FormatNumber(round(s.Change, 6)))
	add("change %", util.FormatNumber(round(s.ChangePct, 2)))
	return t
}

func periodValue(p string, n model.Number) string {
	if p == "" {
		return util.FormatNumber(n)
	}
	return fmt.Sprintf("%s (%s)", util.FormatNumber(n), p)
}

func round(n model.Number, places int) model.Number {
	if !n.Valid {
		return n
	}
	f := math.Pow(10, float64(places))
	return model.Num(math.Round(n.Value*f) / f)
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendMethod selects the regression algorithm.
type TrendMethod string

const (
	TrendLinear   TrendMethod = "linear"
	TrendTheilSen TrendMethod = "theil-sen"
)

// ParseTrendMethod accepts "linear" (the default for "") or "theil-sen".
func ParseTrendMethod(s string) (TrendMethod, error) {
	switch TrendMethod(s) {
	case "", TrendLinear:
		return TrendLinear, nil
	case TrendTheilSen:
		return TrendTheilSen, nil
	}
	return "", fmt.Errorf("unknown trend method %q (want linear or theil-sen)", s)
}

// TrendResult holds the output of a trend analysis.
type TrendResult struct {
	Field        string      `json:"field"`
	Method       TrendMethod `json:"method"`
	Points       int         `json:"points"`
	Slope        float64     `json:"slope"` // units per day
	Intercept    float64     `json:"intercept"`
	R2           float64     `json:"r2"`
	Direction    string      `json:"direction"`      // "up", "down", "flat"
	SlopePerYear float64     `json:"slope_per_year"` // slope * 365.25
}

// Trend fits a linear trend to the column.
// X values are days from the start of the first valid period to the start
// of each period, so monthly and quarterly columns share one slope unit.
// Null values and unparseable periods are excluded.
func Trend(field string, pts []Point, method TrendMethod) (TrendResult, error) {
	tr := TrendResult{Field: field, Method: method}

	// Build (x, y) pairs
	var xy []point
	var t0 int64
	first := true
	for _, p := range pts {
		v, ok := p.Value.Float()
		if !ok {
			continue
		}
		k, err := period.Parse(p.Period)
		if err != nil {
			continue
		}
		unix := k.Start().Unix()
		if first {
			t0 = unix
			first = false
		}
		x := float64(unix-t0) / 86400 // days from first period
		xy = append(xy, point{x, v})
	}
	tr.Points = len(xy)
	if len(xy) < 2 {
		return tr, fmt.Errorf("trend: need at least 2 non-null values, got %d", len(xy))
	}

	switch method {
	case TrendTheilSen:
		tr.Slope = theilSenSlope(xy)
		// Use OLS intercept with Theil-Sen slope
		xMean := meanPts(xy, func(p point) float64 { return p.x })
		yMean := meanPts(xy, func(p point) float64 { return p.y })
		tr.Intercept = yMean - tr.Slope*xMean
	default: // linear OLS
		tr.Method = TrendLinear
		tr.Slope, tr.Intercept = olsRegress(xy)
	}

	tr.R2 = r2(xy, tr.Slope, tr.Intercept)
	tr.SlopePerYear = tr.Slope * 365.25

	switch {
	case tr.SlopePerYear > 0.01:
		tr.Direction = "up"
	case tr.SlopePerYear < -0.01:
		tr.Direction = "down"
	default:
		tr.Direction = "flat"
	}
	return tr, nil
}

// Table lays the trend out as statistic/value pairs.
func (tr TrendResult) Table() model.Table {
	return model.Table{
		Columns: []string{"STAT", "VALUE"},
		Right:   []bool{false, true},
		Rows: [][]string{
			{"field", tr.Field},
			{"method", string(tr.Method)},
			{"points", fmt.Sprintf("%d", tr.Points)},
			{"direction", tr.Direction},
			{"slope / year", fmt.Sprintf("%.4f", tr.SlopePerYear)},
			{"intercept", fmt.Sprintf("%.4f", tr.Intercept)},
			{"r²", fmt.Sprintf("%.4f", tr.R2)},
		},
	}
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func sumF(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddevF(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func skewness(vals []float64, mean, std float64) float64 {
	n := float64(len(vals))
	if n < 3 || std == 0 {
		return 0
	}
	var s float64
	for _, v := range vals {
		d := (v - mean) / std
		s += d * d * d
	}
	return s * n / ((n - 1) * (n - 2))
}

type point struct{ x, y float64 }

func olsRegress(pts []point) (slope, intercept float64) {
	n := float64(len(pts))
	var xSum, ySum, xySum, x2Sum float64
	for _, p := range pts {
		xSum += p.x
		ySum += p.y
		xySum += p.x * p.y
		x2Sum += p.x * p.x
	}
	denom := n*x2Sum - xSum*xSum
	if denom == 0 {
		return 0, ySum / n
	}
	slope = (n*xySum - xSum*ySum) / denom
	intercept = (ySum - slope*xSum) / n
	return
}

func theilSenSlope(pts []point) float64 {
	var slopes []float64
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			dx := pts[j].x - pts[i].x
			if dx == 0 {
				continue
			}
			slopes = append(slopes, (pts[j].y-pts[i].y)/dx)
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return percentile(slopes, 50)
}

func r2(pts []point, slope, intercept float64) float64 {
	var yMean float64
	for _, p := range pts {
		yMean += p.y
	}
	yMean /= float64(len(pts))

	var ssTot, ssRes float64
	for _, p := range pts {
		pred := slope*p.x + intercept
		ssTot += (p.y - yMean) * (p.y - yMean)
		ssRes += (p.y - pred) * (p.y - pred)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

func meanPts(pts []point, f func(point) float64) float64 {
	var s float64
	for _, p := range pts {
		s += f(p)
	}
	return s / float64(len(pts))
}
