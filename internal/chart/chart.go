// Package chart provides ASCII terminal chart rendering for aggregated views.
// Three renderers are available:
//
//   - Bar: horizontal bar chart, one bar per period for one field
//   - StackedBar: one bar per period split into a segment per stack key,
//     with a legend mapping glyphs to key labels
//   - Plot: multi-line ASCII chart with labeled axes for one field
//
// All renderers treat null values as gaps, not zeros.
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/derickschaefer/atlas/internal/model"
)

// LabelFunc turns a period key into a display label.
type LabelFunc func(period string) string

func (f LabelFunc) apply(p string) string {
	if f == nil {
		return p
	}
	return f(p)
}

// ─── Bar ─────────────────────────────────────────────────────────────────────

// BarOptions controls horizontal bar chart rendering.
type BarOptions struct {
	// Width is the total character width available for the chart.
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// MaxBars keeps only the last MaxBars periods. If 0, no limit is applied.
	MaxBars int
	// Label formats period keys. Nil shows the raw key.
	Label LabelFunc
}

// Bar renders a horizontal bar chart of one field to w, one bar per row.
//
// Output example:
//
//	sales  Q1 2023 – Q4 2023
//	Q1 2023  3.5  ████████████
//	Q2 2023    .
//	Q3 2023  5.4  ████████████████████
func Bar(w io.Writer, field string, rows []model.Row, opts BarOptions) error {
	totalWidth := opts.Width
	if totalWidth <= 0 {
		totalWidth = termWidth()
	}

	rows = lastN(rows, opts.MaxBars)
	var valid []float64
	for _, r := range rows {
		if v, ok := r.Values[field].Float(); ok {
			valid = append(valid, v)
		}
	}
	if len(valid) < 1 {
		return fmt.Errorf("chart bar: no values for %q to render", field)
	}

	// Warn if the view looks too dense for a bar chart
	if len(rows) > 60 {
		fmt.Fprintf(w, "⚠  %d periods — consider a coarser --group\n\n", len(rows))
	}

	// Min / max (negative values draw left of a zero baseline)
	minVal, maxVal := valid[0], valid[0]
	for _, v := range valid[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}

	labels, labelWidth := periodLabels(rows, opts.Label)
	valWidth := 1
	for _, r := range rows {
		if l := len(formatNumber(r.Values[field])); l > valWidth {
			valWidth = l
		}
	}

	// Bar area width = totalWidth - labelWidth - valWidth - separators (4 chars)
	barAreaWidth := totalWidth - labelWidth - valWidth - 4
	if barAreaWidth < 4 {
		barAreaWidth = 4
	}

	valRange := maxVal - minVal
	if valRange == 0 {
		valRange = 1 // avoid divide-by-zero for flat series
	}

	hasNeg := minVal < 0
	var zeroPos int // column index of the zero line within bar area
	if hasNeg {
		zeroPos = int(math.Round((-minVal / valRange) * float64(barAreaWidth-1)))
	}

	fmt.Fprintf(w, "%s  %s – %s\n", field, labels[0], labels[len(labels)-1])

	for i, r := range rows {
		n := r.Values[field]
		var bar string
		switch {
		case !n.Valid:
			// gap
		case hasNeg:
			bar = buildBiBar(n.Value, minVal, maxVal, barAreaWidth, zeroPos)
		default:
			barLen := int(math.Round((n.Value - minVal) / valRange * float64(barAreaWidth)))
			if barLen < 1 {
				barLen = 1 // minimum 1 block so every bar is visible
			}
			if barLen > barAreaWidth {
				barLen = barAreaWidth
			}
			bar = strings.Repeat("█", barLen)
		}
		writeLine(w, labelWidth, labels[i], valWidth, formatNumber(n), bar)
	}

	return nil
}

// buildBiBar renders a bar that may extend left (negative) or right (positive)
// from a zero baseline at zeroPos within a field of width barAreaWidth.
func buildBiBar(val, minVal, maxVal float64, barAreaWidth, zeroPos int) string {
	valRange := maxVal - minVal
	buf := []rune(strings.Repeat(" ", barAreaWidth))

	// Mark zero line
	if zeroPos >= 0 && zeroPos < barAreaWidth {
		buf[zeroPos] = '│'
	}

	if val >= 0 {
		end := zeroPos + int(math.Round(val/valRange*float64(barAreaWidth-1)))
		for i := zeroPos + 1; i <= end && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	} else {
		start := zeroPos - int(math.Round((-val)/valRange*float64(barAreaWidth-1)))
		if start < 0 {
			start = 0
		}
		for i := start; i < zeroPos && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	}

	return strings.TrimRight(string(buf), " ")
}

// ─── Stacked Bar ─────────────────────────────────────────────────────────────

// glyphs are assigned to stack keys in order and repeat past the end.
var glyphs = []string{"█", "▓", "▒", "░", "#", "=", "+", "*", "~", "o"}

// StackedBar renders one bar per period with a segment per stack key, scaled
// so the largest period total fills the bar area. Null and negative values
// draw nothing; a period with no positive value is a gap. A legend mapping
// glyphs to key labels follows the bars.
//
//	Q1 2024  160  ██████████▓▓▓▓▓▓░
//	Q2 2024    .
//
//	█ Alpha  ▓ Beta  ░ Other
func StackedBar(w io.Writer, s *model.StackResult, opts BarOptions) error {
	if s == nil || len(s.Keys) == 0 {
		return fmt.Errorf("chart stack: no keys to render")
	}
	totalWidth := opts.Width
	if totalWidth <= 0 {
		totalWidth = termWidth()
	}
	rows := lastN(s.Series, opts.MaxBars)
	if len(rows) == 0 {
		return fmt.Errorf("chart stack: no periods to render")
	}

	totals := make([]model.Number, len(rows))
	var maxTotal float64
	for i, r := range rows {
		for _, k := range s.Keys {
			if v, ok := r.Values[k].Float(); ok && v > 0 {
				totals[i] = totals[i].Add(model.Num(v))
			}
		}
		if totals[i].Valid {
			maxTotal = math.Max(maxTotal, totals[i].Value)
		}
	}
	if maxTotal == 0 {
		return fmt.Errorf("chart stack: no positive values to render")
	}

	labels, labelWidth := periodLabels(rows, opts.Label)
	valWidth := 1
	for _, t := range totals {
		if l := len(formatNumber(t)); l > valWidth {
			valWidth = l
		}
	}
	barAreaWidth := totalWidth - labelWidth - valWidth - 4
	if barAreaWidth < len(s.Keys) {
		barAreaWidth = len(s.Keys)
	}

	for i, r := range rows {
		var sb strings.Builder
		var cum float64
		prevEnd := 0
		for ki, k := range s.Keys {
			v, ok := r.Values[k].Float()
			if !ok || v <= 0 {
				continue
			}
			cum += v
			end := int(math.Round(cum / maxTotal * float64(barAreaWidth)))
			sb.WriteString(strings.Repeat(glyph(ki), end-prevEnd))
			prevEnd = end
		}
		writeLine(w, labelWidth, labels[i], valWidth, formatNumber(totals[i]), sb.String())
	}

	fmt.Fprintln(w)
	legend := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		legend[i] = glyph(i) + " " + s.Label(k)
	}
	fmt.Fprintln(w, strings.Join(legend, "  "))
	return nil
}

func glyph(i int) string { return glyphs[i%len(glyphs)] }

// ─── Plot ─────────────────────────────────────────────────────────────────────

// PlotOptions controls multi-line ASCII plot rendering.
type PlotOptions struct {
	// Width is the total character width of the chart (including Y-axis label).
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// Height is the number of data rows in the chart body (not counting axis labels).
	// If 0, defaults to 12.
	Height int
	// Title overrides the default title (the field name).
	Title string
	// Label formats period keys. Nil shows the raw key.
	Label LabelFunc
}

// Plot renders a multi-line ASCII chart of one field to w.
func Plot(w io.Writer, field string, rows []model.Row, opts PlotOptions) error {
	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	height := opts.Height
	if height <= 0 {
		height = 12
	}
	title := opts.Title
	if title == "" {
		title = field
	}

	values := make([]model.Number, len(rows))
	var validVals []float64
	for i, r := range rows {
		values[i] = r.Values[field]
		if v, ok := values[i].Float(); ok {
			validVals = append(validVals, v)
		}
	}
	if len(validVals) < 2 {
		return fmt.Errorf("chart plot: need at least 2 values for %q (got %d)", field, len(validVals))
	}

	minVal, maxVal := validVals[0], validVals[0]
	for _, v := range validVals[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}

	// Y-axis label width: measure the widest tick label
	ticks := yTicks(minVal, maxVal, height)
	yLabelWidth := 0
	for _, t := range ticks {
		if l := len(formatFloat(t)); l > yLabelWidth {
			yLabelWidth = l
		}
	}
	yAxisWidth := yLabelWidth + 2

	plotWidth := width - yAxisWidth
	if plotWidth < 10 {
		plotWidth = 10
	}

	cols := sampleCols(values, plotWidth)
	grid := buildGrid(cols, minVal, maxVal, height)

	first := opts.Label.apply(rows[0].Period)
	last := opts.Label.apply(rows[len(rows)-1].Period)
	fmt.Fprintf(w, "%s  (%s to %s)\n", title, first, last)

	for row := 0; row < height; row++ {
		label := ""
		for _, t := range ticks {
			if math.Abs(rowForValue(t, minVal, maxVal, height)-float64(row)) < 0.5 {
				label = formatFloat(t)
				break
			}
		}
		labelPadded := fmt.Sprintf("%*s", yLabelWidth, label)

		axisCh := "┤"
		if label != "" && math.Abs(minVal) < 1e-9 && row == height-1 {
			axisCh = "┼"
		} else if label == "" {
			axisCh = " "
		}

		fmt.Fprintf(w, "%s%s%s\n", labelPadded, axisCh, string(grid[row]))
	}

	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", yLabelWidth), strings.Repeat("─", plotWidth))
	fmt.Fprintf(w, "%s %s\n", strings.Repeat(" ", yLabelWidth), xAxisLabels(rows, plotWidth, opts.Label))

	return nil
}

// ─── Grid building ────────────────────────────────────────────────────────────

// sampleCols reduces values to exactly n columns by sampling.
// Each column holds the average of its bucket, or NaN if all are null.
func sampleCols(values []model.Number, n int) []float64 {
	total := len(values)
	cols := make([]float64, n)
	for col := 0; col < n; col++ {
		lo := col * total / n
		hi := (col+1)*total/n - 1
		if hi >= total {
			hi = total - 1
		}
		if hi < lo {
			hi = lo
		}
		sum, count := 0.0, 0
		for i := lo; i <= hi && i < total; i++ {
			if v, ok := values[i].Float(); ok {
				sum += v
				count++
			}
		}
		if count == 0 {
			cols[col] = math.NaN()
		} else {
			cols[col] = sum / float64(count)
		}
	}
	return cols
}

// rowForValue returns the float row index (0=top=max) for a given value.
func rowForValue(v, minVal, maxVal float64, height int) float64 {
	if maxVal == minVal {
		return float64(height) / 2
	}
	return (maxVal - v) / (maxVal - minVal) * float64(height-1)
}

// buildGrid renders columns into a height×width rune grid using
// box-drawing characters to connect adjacent data points.
func buildGrid(cols []float64, minVal, maxVal float64, height int) [][]rune {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = make([]rune, len(cols))
		for c := range grid[r] {
			grid[r][c] = ' '
		}
	}

	rowOf := make([]int, len(cols))
	for col, v := range cols {
		if math.IsNaN(v) {
			rowOf[col] = -1 // gap
			continue
		}
		r := int(math.Round(rowForValue(v, minVal, maxVal, height)))
		rowOf[col] = min(max(r, 0), height-1)
	}

	for col := 0; col < len(cols); col++ {
		r := rowOf[col]
		if r < 0 {
			continue
		}

		prevRow := -2
		if col > 0 {
			prevRow = rowOf[col-1]
		}
		nextRow := -2
		if col < len(cols)-1 {
			nextRow = rowOf[col+1]
		}

		if prevRow < 0 && nextRow < 0 {
			grid[r][col] = '·'
			continue
		}

		switch {
		case (prevRow < 0 || prevRow == r) && (nextRow < 0 || nextRow == r):
			grid[r][col] = '─'
		case prevRow >= 0 && nextRow >= 0 && (prevRow < r) == (nextRow < r) && prevRow != r && nextRow != r:
			// peak or valley
			grid[r][col] = '─'
		case (prevRow < 0 || prevRow <= r) && nextRow > r:
			grid[r][col] = '╭'
		case (prevRow < 0 || prevRow >= r) && nextRow >= 0 && nextRow < r:
			grid[r][col] = '╰'
		case prevRow >= 0 && prevRow < r:
			grid[r][col] = '╮'
		case prevRow > r:
			grid[r][col] = '╯'
		default:
			grid[r][col] = '─'
		}

		// Fill vertical connectors between this row and previous column's row
		if prevRow >= 0 && prevRow != r {
			lo, hi := min(r, prevRow), max(r, prevRow)
			for fill := lo + 1; fill < hi; fill++ {
				if grid[fill][col] == ' ' {
					grid[fill][col] = '│'
				}
			}
		}
	}

	return grid
}

// ─── Axis helpers ─────────────────────────────────────────────────────────────

// yTicks returns 3–4 evenly-spaced tick values for the Y axis.
func yTicks(minVal, maxVal float64, height int) []float64 {
	if maxVal == minVal {
		return []float64{minVal}
	}
	nTicks := 4
	if height <= 6 {
		nTicks = 3
	}
	ticks := make([]float64, nTicks)
	for i := 0; i < nTicks; i++ {
		ticks[i] = minVal + float64(i)*(maxVal-minVal)/float64(nTicks-1)
	}
	return ticks
}

// xAxisLabels builds a padded string with start, middle, and end period labels.
func xAxisLabels(rows []model.Row, plotWidth int, label LabelFunc) string {
	if len(rows) == 0 {
		return ""
	}
	startLabel := label.apply(rows[0].Period)
	endLabel := label.apply(rows[len(rows)-1].Period)
	midLabel := label.apply(rows[len(rows)/2].Period)

	midPos := plotWidth/2 - utf8.RuneCountInString(midLabel)/2
	endPos := plotWidth - utf8.RuneCountInString(endLabel)

	buf := []rune(strings.Repeat(" ", plotWidth))
	writeAt := func(pos int, s string) {
		for i, ch := range []rune(s) {
			if pos+i >= 0 && pos+i < len(buf) {
				buf[pos+i] = ch
			}
		}
	}
	writeAt(0, startLabel)
	writeAt(midPos, midLabel)
	writeAt(endPos, endLabel)

	return strings.TrimRight(string(buf), " ")
}

// ─── Utilities ────────────────────────────────────────────────────────────────

func lastN(rows []model.Row, n int) []model.Row {
	if n > 0 && len(rows) > n {
		return rows[len(rows)-n:]
	}
	return rows
}

func periodLabels(rows []model.Row, label LabelFunc) ([]string, int) {
	out := make([]string, len(rows))
	width := 0
	for i, r := range rows {
		out[i] = label.apply(r.Period)
		width = max(width, utf8.RuneCountInString(out[i]))
	}
	return out, width
}

func writeLine(w io.Writer, labelWidth int, label string, valWidth int, val, bar string) {
	line := fmt.Sprintf("%-*s  %*s  %s", labelWidth, label, valWidth, val, bar)
	fmt.Fprintln(w, strings.TrimRight(line, " "))
}

// formatNumber is formatFloat with "." for null.
func formatNumber(n model.Number) string {
	if !n.Valid {
		return "."
	}
	return formatFloat(n.Value)
}

// formatFloat formats a float for axis labels: no unnecessary trailing zeros,
// at least one decimal place, compact notation for large/small numbers.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	abs := math.Abs(v)
	var s string
	switch {
	case abs == 0:
		return "0"
	case abs >= 1e6:
		s = strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e3:
		s = strconv.FormatFloat(v/1e3, 'f', 1, 64) + "K"
	case abs >= 100:
		s = strconv.FormatFloat(v, 'f', 1, 64)
	case abs >= 1:
		s = strconv.FormatFloat(v, 'f', 2, 64)
	default:
		s = strconv.FormatFloat(v, 'f', 4, 64)
	}
	// Trim trailing zeros after decimal point, keep at least one decimal
	if strings.Contains(s, ".") && !strings.HasSuffix(s, "M") && !strings.HasSuffix(s, "K") {
		s = strings.TrimRight(s, "0")
		if strings.HasSuffix(s, ".") {
			s += "0"
		}
	}
	return s
}

// termWidth returns the terminal width from $COLUMNS, defaulting to 80.
func termWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
