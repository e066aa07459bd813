// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/period"
	"github.com/derickschaefer/atlas/internal/pipeline"
	"github.com/derickschaefer/atlas/internal/util"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Options controls human-facing presentation. Machine formats ignore it.
type Options struct {
	Locale language.Tag
}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string, opts Options) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result, opts)
	default:
		return renderTable(w, result, opts)
	}
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// renderJSONL emits the pipe format for series kinds, one element per line
// for totals, and the bare payload for everything else.
func renderJSONL(w io.Writer, result *model.Result) error {
	switch data := result.Data.(type) {
	case model.RowSet:
		return pipeline.WriteRows(w, data.Fields, data.Rows)
	case *model.RowSet:
		return pipeline.WriteRows(w, data.Fields, data.Rows)
	case *model.StackResult:
		return pipeline.WriteStack(w, data)
	case []model.KeyTotal:
		enc := json.NewEncoder(w)
		for _, kt := range data {
			if err := enc.Encode(kt); err != nil {
				return err
			}
		}
		return nil
	}
	return json.NewEncoder(w).Encode(result.Data)
}

// ─── Grids ───────────────────────────────────────────────────────────────────

// grid lays result out as rows and columns. Display grids use period
// labels, key labels and localized numbers; raw grids keep keys and plain
// numbers for machine consumption. ok is false for payloads with no layout.
func grid(result *model.Result, raw bool, locale language.Tag) (model.Table, bool) {
	f := newFormatter(raw, locale, period.Granularity(result.Grouping))

	switch data := result.Data.(type) {
	case model.RowSet:
		return rowsGrid(data, f), true
	case *model.RowSet:
		return rowsGrid(*data, f), true
	case *model.StackResult:
		return stackGrid(data, f), true
	case []model.KeyTotal:
		return totalsGrid(data, f), true
	case model.ViewOptions:
		return optionsGrid(data, f), true
	case *model.ViewOptions:
		return optionsGrid(*data, f), true
	case *model.Meta:
		return metaGrid(*data, f), true
	case model.Meta:
		return metaGrid(data, f), true
	case model.Tabler:
		t := data.Table()
		if raw {
			t.Columns = lowerAll(t.Columns)
		}
		return t, true
	}
	return model.Table{}, false
}

func rowsGrid(rs model.RowSet, f formatter) model.Table {
	t := model.Table{
		Columns: append([]string{f.header("period")}, rs.Fields...),
		Right:   rightAfter(1, len(rs.Fields)),
	}
	if !f.raw {
		for i, c := range rs.Fields {
			t.Columns[i+1] = strings.ToUpper(c)
		}
	}
	for _, row := range rs.Rows {
		cells := []string{f.period(row.Period)}
		for _, fld := range rs.Fields {
			cells = append(cells, f.number(row.Values[fld]))
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func stackGrid(s *model.StackResult, f formatter) model.Table {
	t := model.Table{Columns: []string{f.header("period")}}
	for _, k := range s.Keys {
		if f.raw {
			t.Columns = append(t.Columns, k)
		} else {
			t.Columns = append(t.Columns, s.Label(k))
		}
	}
	if !f.raw {
		t.Columns = append(t.Columns, "TOTAL")
	}
	t.Right = rightAfter(1, len(t.Columns)-1)
	for _, row := range s.Series {
		cells := []string{f.period(row.Period)}
		for _, k := range s.Keys {
			cells = append(cells, f.number(row.Values[k]))
		}
		if !f.raw {
			cells = append(cells, f.number(row.Total()))
		}
		t.Rows = append(t.Rows, cells)
	}
	if !f.raw && len(s.Series) > 0 {
		totals := s.Totals()
		var grand model.Number
		t.Footer = []string{"TOTAL"}
		for _, k := range s.Keys {
			t.Footer = append(t.Footer, f.number(totals[k]))
			grand = grand.Add(totals[k])
		}
		t.Footer = append(t.Footer, f.number(grand))
	}
	return t
}

func totalsGrid(totals []model.KeyTotal, f formatter) model.Table {
	t := model.Table{
		Columns: []string{f.header("key"), f.header("label"), f.header("total"), f.header("share")},
		Right:   []bool{false, false, true, true},
	}
	var sum model.Number
	for _, kt := range totals {
		sum = sum.Add(kt.Total)
	}
	for _, kt := range totals {
		t.Rows = append(t.Rows, []string{kt.Key, kt.Label, f.number(kt.Total), f.share(kt.Total, sum)})
	}
	return t
}

func optionsGrid(o model.ViewOptions, f formatter) model.Table {
	t := model.Table{
		Columns: []string{f.header("range"), f.header("periods"), f.header("start"), f.header("end")},
		Right:   []bool{false, true, false, false},
	}
	for _, r := range o.Ranges {
		count := strconv.Itoa(r.Count)
		if r.Count == 0 {
			count = strconv.Itoa(o.Count)
		}
		t.Rows = append(t.Rows, []string{r.Label, count, f.period(r.Start), f.period(r.End)})
	}
	return t
}

func metaGrid(m model.Meta, f formatter) model.Table {
	t := model.Table{Columns: []string{f.header("field"), f.header("value")}}
	add := func(k, v string) {
		if v != "" {
			t.Rows = append(t.Rows, []string{k, v})
		}
	}
	add("ID", m.ID)
	add("Title", m.Title)
	add("Units", m.Units)
	add("Granularity", string(m.Granularity))
	add("Periods", strconv.Itoa(m.PeriodCount))
	add("Metrics", strings.Join(m.Metrics, ", "))
	for _, d := range m.DimensionNames() {
		add("Dimension "+d, fmt.Sprintf("%d values", len(m.Dimensions[d])))
	}
	add("Source", m.Source)
	if !m.GeneratedAt.IsZero() {
		add("Generated", m.GeneratedAt.Format(time.RFC3339))
	}
	if m.Description != "" {
		desc := m.Description
		if !f.raw && len(desc) > 200 {
			desc = desc[:200] + "…"
		}
		add("Description", desc)
	}
	return t
}

func rightAfter(skip, n int) []bool {
	out := make([]bool, skip+n)
	for i := skip; i < len(out); i++ {
		out[i] = true
	}
	return out
}

func lowerAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.ToLower(c)
	}
	return out
}

// ─── Cell Formatting ─────────────────────────────────────────────────────────

type formatter struct {
	raw      bool
	locale   language.Tag
	grouping period.Granularity
	printer  *message.Printer
}

func newFormatter(raw bool, locale language.Tag, grouping period.Granularity) formatter {
	if locale == language.Und {
		locale = language.English
	}
	return formatter{raw: raw, locale: locale, grouping: grouping, printer: message.NewPrinter(locale)}
}

func (f formatter) header(s string) string {
	if f.raw {
		return s
	}
	return strings.ToUpper(s)
}

func (f formatter) period(key string) string {
	if f.raw || key == "" {
		return key
	}
	return period.Format(key, f.grouping, f.locale)
}

// number shows null as "." in every format.
func (f formatter) number(n model.Number) string {
	if f.raw || !n.Valid {
		return util.FormatNumber(n)
	}
	return f.printer.Sprint(number.Decimal(n.Value, number.MaxFractionDigits(4)))
}

func (f formatter) share(n, total model.Number) string {
	if !n.Valid || !total.Valid || total.Value == 0 {
		return "."
	}
	pct := n.Value / total.Value * 100
	if f.raw {
		return strconv.FormatFloat(math.Round(pct*100)/100, 'f', -1, 64)
	}
	return f.printer.Sprint(number.Decimal(pct, number.MaxFractionDigits(1))) + "%"
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result, opts Options) error {
	t, ok := grid(result, false, opts.Locale)
	if !ok {
		return renderJSON(w, result)
	}
	if o, isOpts := viewOptions(result.Data); isOpts {
		fmt.Fprintf(w, "Coverage: %s to %s (%d %s periods)\n", o.First, o.Last, o.Count, o.Granularity)
		fmt.Fprintf(w, "Groupings: %s\n\n", joinGranularities(o.Groupings))
	}

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader(t.Columns)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	if len(t.Right) == len(t.Columns) {
		align := make([]int, len(t.Columns))
		for i, r := range t.Right {
			align[i] = tablewriter.ALIGN_LEFT
			if r {
				align[i] = tablewriter.ALIGN_RIGHT
			}
		}
		tw.SetColumnAlignment(align)
	}
	for _, r := range t.Rows {
		tw.Append(r)
	}
	if len(t.Footer) == len(t.Columns) {
		tw.SetFooter(t.Footer)
	}
	tw.Render()
	return nil
}

func viewOptions(data any) (model.ViewOptions, bool) {
	switch o := data.(type) {
	case model.ViewOptions:
		return o, true
	case *model.ViewOptions:
		return *o, true
	}
	return model.ViewOptions{}, false
}

func joinGranularities(gs []period.Granularity) string {
	parts := make([]string, len(gs))
	for i, g := range gs {
		parts[i] = string(g)
	}
	return strings.Join(parts, ", ")
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	if t, ok := grid(result, true, language.English); ok {
		_ = cw.Write(t.Columns)
		for _, r := range t.Rows {
			_ = cw.Write(r)
		}
	} else {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result, opts Options) error {
	t, ok := grid(result, false, opts.Locale)
	if !ok {
		return renderJSON(w, result)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(escapeAll(t.Columns), " | "))
	seps := make([]string, len(t.Columns))
	for i := range seps {
		seps[i] = "----"
		if i < len(t.Right) && t.Right[i] {
			seps[i] = "---:"
		}
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
	for _, r := range t.Rows {
		fmt.Fprintf(w, "| %s |\n", strings.Join(escapeAll(r), " | "))
	}
	if len(t.Footer) == len(t.Columns) {
		fmt.Fprintf(w, "| %s |\n", strings.Join(escapeAll(t.Footer), " | "))
	}
	return nil
}

func escapeAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = mdEscape(c)
	}
	return out
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		src := "live"
		if result.Stats.CacheHit {
			src = "cache"
		}
		fmt.Fprintf(w, "\n[%s • %d items • %dms • %s]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
			src,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
