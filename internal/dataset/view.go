// Package dataset implements the view engine every chart and explorer is
// built on. A View wraps an immutable Dataset and derives plain values from
// it: trailing-window limits, re-aggregation at a coarser granularity,
// stacked per-dimension series with top-K and "Other" selection, and
// per-key totals for selection controls.
//
// All operations are synchronous and pure. A View never mutates the
// Dataset it wraps and is safe for concurrent use.
package dataset

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/period"
	"github.com/derickschaefer/atlas/internal/timerange"
)

// View is a read-only window onto a Dataset.
type View struct {
	meta    model.Meta
	native  period.Granularity
	records []model.Record
	periods []string // distinct native period keys, ascending
	skipped int
}

// New wraps ds. Records whose period key is missing, malformed, or not at
// the native granularity are left out of the view; Skipped reports how
// many. When meta does not declare a valid granularity it is inferred from
// the first parseable record, and a zero PeriodCount is filled from the
// records kept. A nil dataset yields an empty view.
func New(ds *model.Dataset) *View {
	v := &View{}
	if ds == nil {
		return v
	}
	v.meta = ds.Meta
	v.native = ds.Meta.Granularity
	if !v.native.Valid() {
		v.native = inferGranularity(ds.Records)
	}

	v.records = make([]model.Record, 0, len(ds.Records))
	seen := make(map[string]struct{})
	for _, r := range ds.Records {
		k, err := period.Parse(r.Period())
		if err != nil || k.Granularity != v.native {
			v.skipped++
			continue
		}
		v.records = append(v.records, r)
		if _, ok := seen[r.Period()]; !ok {
			seen[r.Period()] = struct{}{}
			v.periods = append(v.periods, r.Period())
		}
	}
	sort.Strings(v.periods)
	v.meta.Granularity = v.native
	if v.meta.PeriodCount == 0 {
		v.meta.PeriodCount = len(v.periods)
	}

	if v.skipped > 0 {
		slog.Debug("dataset view skipped records", "dataset", ds.Meta.ID, "skipped", v.skipped, "granularity", v.native)
	}
	return v
}

// FromRecords builds a view over records described by meta.
func FromRecords(meta model.Meta, records ...model.Record) *View {
	return New(&model.Dataset{Meta: meta, Records: records})
}

func inferGranularity(records []model.Record) period.Granularity {
	for _, r := range records {
		if g, err := period.Detect(r.Period()); err == nil {
			return g
		}
	}
	return ""
}

// Meta returns the dataset metadata.
func (v *View) Meta() model.Meta { return v.meta }

// Granularity returns the native granularity of the view's records.
func (v *View) Granularity() period.Granularity { return v.native }

// Len returns the number of records in the view.
func (v *View) Len() int { return len(v.records) }

// Skipped returns how many dataset records were left out by New.
func (v *View) Skipped() int { return v.skipped }

// Records returns a copy of the record slice. The records themselves are
// shared and must not be modified.
func (v *View) Records() []model.Record {
	out := make([]model.Record, len(v.records))
	copy(out, v.records)
	return out
}

// Periods returns the distinct native period keys present, ascending.
func (v *View) Periods() []string {
	out := make([]string, len(v.periods))
	copy(out, v.periods)
	return out
}

// Coverage describes the periods present in the view.
func (v *View) Coverage() timerange.Coverage {
	return timerange.FromPeriods(v.native, v.periods)
}

// RangeOptions returns the selectable trailing windows for the view.
func (v *View) RangeOptions() []timerange.Option {
	return timerange.Options(v.Coverage())
}

// GroupingOptions returns the granularities the view can be aggregated to.
func (v *View) GroupingOptions() []period.Granularity {
	return period.GroupingOptions(v.native)
}

// Window returns the literal boundaries of option o for this view.
func (v *View) Window(o timerange.Option) (start, end string, err error) {
	return timerange.Window(v.Coverage(), o)
}

// ─── Limit ────────────────────────────────────────────────────────────────────

// Limit restricts the view to the o.Count most recent distinct periods
// present in the records. All returns the view unchanged. Limit is
// idempotent: v.Limit(o).Limit(o) selects the same records as v.Limit(o).
func (v *View) Limit(o timerange.Option) *View {
	keep := timerange.Tail(v.periods, o)
	if len(keep) == len(v.periods) {
		return v
	}
	set := make(map[string]struct{}, len(keep))
	for _, p := range keep {
		set[p] = struct{}{}
	}
	records := make([]model.Record, 0, len(v.records))
	for _, r := range v.records {
		if _, ok := set[r.Period()]; ok {
			records = append(records, r)
		}
	}
	periods := make([]string, len(keep))
	copy(periods, keep)
	return &View{
		meta:    v.meta,
		native:  v.native,
		records: records,
		periods: periods,
		skipped: v.skipped,
	}
}

// resolveGrouping validates a requested grouping against the native
// granularity. The zero value selects native.
func (v *View) resolveGrouping(g period.Granularity) (period.Granularity, error) {
	if g == "" {
		return v.native, nil
	}
	if !g.Valid() {
		return "", fmt.Errorf("%w %q", period.ErrUnknownGranularity, g)
	}
	if v.native.Valid() && g.FinerThan(v.native) {
		return "", fmt.Errorf("%w: cannot group %s data by %s", period.ErrFinerGranularity, v.native, g)
	}
	return g, nil
}
