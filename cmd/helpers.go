package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/app"
	"github.com/derickschaefer/atlas/internal/catalog"
	"github.com/derickschaefer/atlas/internal/dataset"
	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/period"
	"github.com/derickschaefer/atlas/internal/pipeline"
	"github.com/derickschaefer/atlas/internal/render"
	"github.com/derickschaefer/atlas/internal/source"
	"github.com/derickschaefer/atlas/internal/timerange"
	"github.com/derickschaefer/atlas/internal/util"
)

// isTTY is swapped out in tests.
var isTTY = pipeline.IsTTY

// resolveFormat returns the effective format string. An explicit --format
// wins; otherwise piped stdout gets the JSONL pipe format, and a terminal
// gets the configured default, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if globalFlags.Out == "" && !isTTY() {
		return render.FormatJSONL
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// outputWriter returns def, or the --out file when one is set. The returned
// closer must be called once output is complete.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// emit renders result to the output writer and prints warnings (and, with
// --verbose, stats) to stderr so piped output stays clean.
func emit(cmd *cobra.Command, deps *app.Deps, result *model.Result) error {
	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	format := resolveFormat(deps.Config.Format)
	if err := render.Render(w, result, format, render.Options{Locale: deps.Locale()}); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if !deps.Config.Quiet {
		render.PrintFooter(cmd.ErrOrStderr(), result, deps.Config.Verbose)
	}
	return nil
}

// commandLine rebuilds the invocation for the Result envelope.
func commandLine(cmd *cobra.Command, args []string) string {
	path := strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" ")
	if len(args) == 0 {
		return path
	}
	return path + " " + strings.Join(args, " ")
}

// ─── View flags ───────────────────────────────────────────────────────────────

// viewFlags are the controls shared by every command that derives a view.
// Empty values fall back to the catalog entry, then to the dataset's meta.
type viewFlags struct {
	Last           string
	Group          string
	Dimension      string
	Metric         string
	Mode           string
	Top            int
	Select         string
	Exclude        string
	Other          bool
	DropIncomplete bool
	KeepLatest     bool

	topSet bool
}

// register adds the window/grouping/metric flags, plus the key selection
// flags when keys is true.
func (f *viewFlags) register(cmd *cobra.Command, keys bool) {
	fs := cmd.Flags()
	fs.StringVar(&f.Last, "last", "", "trailing window: a period count or \"all\" (default: all)")
	fs.StringVar(&f.Group, "group", "", "output grouping: daily|monthly|quarterly|yearly (default: native)")
	fs.StringVar(&f.Metric, "metric", "", "metric field(s) to read (default: catalog, then first declared metric)")
	fs.StringVar(&f.Mode, "mode", "", "grouped value mode: sum|latest (default: sum)")
	if !keys {
		return
	}
	fs.StringVar(&f.Dimension, "dimension", "", "dimension to stack by (default: catalog, then first declared dimension)")
	fs.IntVar(&f.Top, "top", 0, "show the N highest-ranked keys (0 = all)")
	fs.StringVar(&f.Select, "select", "", "comma-separated keys to show, in order (overrides --top and --exclude)")
	fs.StringVar(&f.Exclude, "exclude", "", "comma-separated keys to hide")
	fs.BoolVar(&f.Other, "other", false, "add an \"Other\" key summing every hidden key")
	fs.BoolVar(&f.DropIncomplete, "drop-incomplete", false, "trim leading/trailing buckets the data does not fully cover")
	fs.BoolVar(&f.KeepLatest, "keep-latest", false, "with --drop-incomplete, keep a partial most recent bucket")
}

// loaded is a fetched dataset with the view derived from it.
type loaded struct {
	entry   catalog.Entry
	fetched *source.Fetched
	view    *dataset.View
	flags   *viewFlags
	start   time.Time
}

// loadView resolves ref through the catalog, fetches it and applies the
// --last window. vf may be nil for commands without view flags.
func loadView(cmd *cobra.Command, deps *app.Deps, ref string, vf *viewFlags) (*loaded, error) {
	start := time.Now()
	entry := deps.Catalog.Resolve(ref)
	f, err := deps.Fetcher.Fetch(cmd.Context(), entry.Ref)
	if err != nil {
		return nil, err
	}
	l := &loaded{entry: entry, fetched: f, view: dataset.New(f.Dataset), flags: vf, start: start}
	if vf == nil {
		l.flags = &viewFlags{}
		return l, nil
	}
	if fl := cmd.Flags().Lookup("top"); fl != nil {
		vf.topSet = fl.Changed
	}
	opt, err := timerange.ParseOption(vf.Last)
	if err != nil {
		return nil, err
	}
	l.view = l.view.Limit(opt)
	return l, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// dimension returns the dimension to key by.
func (l *loaded) dimension() (string, error) {
	d := firstNonEmpty(l.flags.Dimension, l.entry.Dimension)
	if d != "" {
		return d, nil
	}
	names := l.view.Meta().DimensionNames()
	if len(names) == 0 {
		return "", fmt.Errorf("dataset declares no dimensions: pass --dimension")
	}
	return names[0], nil
}

// metrics returns the requested metric fields. An empty result means the
// dataset's declared metrics.
func (l *loaded) metrics() []string {
	if l.flags.Metric != "" {
		return util.SplitList(l.flags.Metric)
	}
	if l.entry.Metric != "" {
		return []string{l.entry.Metric}
	}
	return nil
}

// metric returns the single metric field a command reads.
func (l *loaded) metric() (string, error) {
	if ms := l.metrics(); len(ms) > 0 {
		if len(ms) > 1 {
			return "", fmt.Errorf("expected one --metric, got %d", len(ms))
		}
		return ms[0], nil
	}
	if ms := l.view.Meta().Metrics; len(ms) > 0 {
		return ms[0], nil
	}
	return "", fmt.Errorf("dataset declares no metric fields: pass --metric")
}

func (l *loaded) grouping() (period.Granularity, error) {
	g := firstNonEmpty(l.flags.Group, l.entry.Grouping)
	if g == "" {
		return l.view.Granularity(), nil
	}
	return period.ParseGranularity(g)
}

func (l *loaded) mode() (dataset.Mode, error) {
	return dataset.ParseMode(firstNonEmpty(l.flags.Mode, l.entry.Mode))
}

func (l *loaded) top() int {
	if l.flags.topSet {
		return l.flags.Top
	}
	return l.entry.Top
}

// stackOptions turns the flags into dataset.StackOptions.
func (l *loaded) stackOptions() (dataset.StackOptions, error) {
	var opts dataset.StackOptions
	dim, err := l.dimension()
	if err != nil {
		return opts, err
	}
	metric, err := l.metric()
	if err != nil {
		return opts, err
	}
	g, err := l.grouping()
	if err != nil {
		return opts, err
	}
	m, err := l.mode()
	if err != nil {
		return opts, err
	}
	opts = dataset.StackOptions{
		Dimension:                dim,
		Value:                    dataset.Field(metric),
		Grouping:                 g,
		Excluded:                 util.SplitList(l.flags.Exclude),
		Top:                      l.top(),
		IncludeOther:             l.flags.Other,
		Mode:                     m,
		DropIncomplete:           l.flags.DropIncomplete,
		PreserveLatestIncomplete: l.flags.KeepLatest,
	}
	if l.flags.Select != "" {
		opts.Selected = util.SplitList(l.flags.Select)
	}
	return opts, nil
}

// aggregate groups the view by names, defaulting to the requested metrics.
func (l *loaded) aggregate(names ...string) (model.RowSet, period.Granularity, error) {
	g, err := l.grouping()
	if err != nil {
		return model.RowSet{}, "", err
	}
	m, err := l.mode()
	if err != nil {
		return model.RowSet{}, "", err
	}
	if len(names) == 0 {
		names = l.metrics()
	}
	if len(names) == 0 {
		names = l.view.Meta().Metrics
	}
	if len(names) == 0 {
		return model.RowSet{}, "", fmt.Errorf("dataset declares no metric fields: pass --metric")
	}
	fields := make([]dataset.AggField, len(names))
	for i, n := range names {
		fields[i] = dataset.AggField{Name: n, Mode: m}
	}
	rows, err := l.view.Aggregate(dataset.AggregateOptions{Grouping: g, Fields: fields})
	if err != nil {
		return model.RowSet{}, "", err
	}
	return model.RowSet{Fields: names, Rows: rows}, g, nil
}

func skippedWarning(n int) string {
	return fmt.Sprintf("%d record(s) skipped: missing or mixed-granularity period", n)
}

// result wraps data in the Result envelope with the fetch stats and any
// decode warnings attached.
func (l *loaded) result(kind, command string, data any, items int) *model.Result {
	warnings := append([]string(nil), l.fetched.Warnings...)
	if n := l.view.Skipped(); n > 0 {
		warnings = append(warnings, skippedWarning(n))
	}
	name := firstNonEmpty(l.entry.ID, l.view.Meta().ID, l.fetched.Ref)
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Dataset:     name,
		Data:        data,
		Warnings:    warnings,
		Stats: model.ResultStats{
			CacheHit:   l.fetched.Stats.CacheHit,
			DurationMs: time.Since(l.start).Milliseconds(),
			Items:      items,
		},
	}
}

// labeler formats period keys at grouping g in the configured locale.
func labeler(deps *app.Deps, g period.Granularity) func(string) string {
	locale := deps.Locale()
	return func(key string) string { return period.Format(key, g, locale) }
}
