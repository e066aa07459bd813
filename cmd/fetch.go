package cmd

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/app"
	"github.com/derickschaefer/atlas/internal/catalog"
	"github.com/derickschaefer/atlas/internal/dataset"
	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/pipeline"
	"github.com/derickschaefer/atlas/internal/render"
	"github.com/derickschaefer/atlas/internal/source"
	"github.com/derickschaefer/atlas/internal/util"
)

var (
	fetchConcurrency int
	fetchRecords     bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <DATASET...>",
	Short: "Fetch dataset snapshots into the cache",
	Long: `Fetch one or more dataset snapshots, store them in the local cache
(and the shared redis cache when configured) and report what was loaded.

With --records and a single dataset, the decoded records are written in the
JSONL pipe format instead, ready for another atlas command reading "-".`,
	Example: `  atlas fetch sales unemployment
  atlas fetch https://cdn.example.org/snapshots/sales.json --refresh
  atlas fetch s3://public-snapshots/trade/exports.json
  atlas fetch sales --records | atlas stack - --dimension region`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		if fetchRecords {
			if len(args) != 1 {
				return fmt.Errorf("--records takes exactly one dataset, got %d", len(args))
			}
			return writeRecords(cmd, deps, args[0])
		}

		start := time.Now()
		lines, warnings := batchFetch(cmd, deps, args)
		result := &model.Result{
			Kind:        model.KindTable,
			GeneratedAt: time.Now(),
			Command:     commandLine(cmd, args),
			Data:        lines,
			Warnings:    warnings,
			Stats: model.ResultStats{
				DurationMs: time.Since(start).Milliseconds(),
				Items:      len(lines),
			},
		}
		if err := emit(cmd, deps, result); err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("no datasets fetched")
		}
		return nil
	},
}

// fetchLine reports one fetched dataset.
type fetchLine struct {
	Ref        string    `json:"ref"`
	ID         string    `json:"id,omitempty"`
	Records    int       `json:"records"`
	Periods    int       `json:"periods"`
	First      string    `json:"first,omitempty"`
	Last       string    `json:"last,omitempty"`
	Bytes      int       `json:"bytes"`
	CacheHit   bool      `json:"cache_hit"`
	FetchedAt  time.Time `json:"fetched_at"`
	DurationMs int64     `json:"duration_ms"`
}

type fetchReport []fetchLine

func (r fetchReport) Table() model.Table {
	t := model.Table{
		Columns: []string{"REF", "ID", "RECORDS", "PERIODS", "RANGE", "SIZE", "SOURCE"},
		Right:   []bool{false, false, true, true, false, true, false},
	}
	for _, l := range r {
		src := "live"
		if l.CacheHit {
			src = "cache"
		}
		span := ""
		if l.First != "" {
			span = l.First + " – " + l.Last
		}
		t.Rows = append(t.Rows, []string{
			l.Ref, l.ID, strconv.Itoa(l.Records), strconv.Itoa(l.Periods), span,
			util.HumanBytes(int64(l.Bytes)), src,
		})
	}
	return t
}

// batchFetch fetches refs concurrently, bounded by --concurrency. Failures
// become warnings; results keep argument order.
func batchFetch(cmd *cobra.Command, deps *app.Deps, refs []string) (fetchReport, []string) {
	type result struct {
		line     fetchLine
		warnings []string
		err      error
	}

	concurrency := fetchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	sem := make(chan struct{}, concurrency)
	results := make([]result, len(refs))
	var wg sync.WaitGroup

	for i, ref := range refs {
		i, ref := i, ref
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			entry := deps.Catalog.Resolve(ref)
			f, err := deps.Fetcher.Fetch(cmd.Context(), entry.Ref)
			if err != nil {
				results[i] = result{err: err}
				return
			}
			line, skipped := lineFor(entry, f)
			warns := f.Warnings
			if skipped > 0 {
				warns = append(warns[:len(warns):len(warns)], skippedWarning(skipped))
			}
			results[i] = result{line: line, warnings: warns}
		}()
	}
	wg.Wait()

	var lines fetchReport
	var warnings []string
	for i, r := range results {
		if r.err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", refs[i], r.err))
			continue
		}
		for _, w := range r.warnings {
			warnings = append(warnings, fmt.Sprintf("%s: %s", refs[i], w))
		}
		lines = append(lines, r.line)
	}
	return lines, warnings
}

// lineFor summarises one fetched dataset and reports how many of its
// records the view left out.
func lineFor(entry catalog.Entry, f *source.Fetched) (fetchLine, int) {
	v := dataset.New(f.Dataset)
	c := v.Coverage()
	return fetchLine{
		Ref:        f.Ref,
		ID:         firstNonEmpty(entry.ID, v.Meta().ID),
		Records:    v.Len(),
		Periods:    c.Count,
		First:      c.First,
		Last:       c.Last,
		Bytes:      f.Stats.Bytes,
		CacheHit:   f.Stats.CacheHit,
		FetchedAt:  f.Stats.FetchedAt,
		DurationMs: f.Stats.Duration.Milliseconds(),
	}, v.Skipped()
}

// writeRecords streams the decoded records of one dataset as JSONL.
func writeRecords(cmd *cobra.Command, deps *app.Deps, ref string) error {
	l, err := loadView(cmd, deps, ref, nil)
	if err != nil {
		return err
	}
	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := pipeline.WriteRecords(w, l.view.Records()); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}
	if !deps.Config.Quiet {
		result := l.result(model.KindTable, commandLine(cmd, []string{ref}), nil, l.view.Len())
		render.PrintFooter(cmd.ErrOrStderr(), result, deps.Config.Verbose)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 4, "max parallel fetches")
	fetchCmd.Flags().BoolVar(&fetchRecords, "records", false, "write the decoded records as JSONL instead of a report")
}
