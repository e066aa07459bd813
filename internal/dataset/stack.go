package dataset

import (
	"fmt"
	"sort"

	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/period"
)

// OtherKey is the synthetic stack key that collects every non-active key.
const OtherKey = "Other"

// StackOptions configures Stack.
type StackOptions struct {
	Key       KeyAccessor   // nil reads Dimension
	Value     ValueAccessor // nil reads the first declared metric
	Dimension string        // meta dimension used for labels and tie-breaks

	// Grouping is the output granularity. The zero value keeps native.
	Grouping period.Granularity

	// Selected, when non-nil, is the authoritative key list in display
	// order. Otherwise the Top ranked keys not in Excluded are shown.
	Selected []string
	Excluded []string
	Top      int // <= 0 shows every key

	// IncludeOther adds an "Other" key summing every non-active key.
	IncludeOther bool

	// Mode combines values within one (period, key) bucket.
	Mode Mode

	// DropIncomplete trims leading and trailing buckets that the native
	// data does not fully cover. PreserveLatestIncomplete keeps the most
	// recent bucket even when it is partial.
	DropIncomplete           bool
	PreserveLatestIncomplete bool
}

type cellKey struct{ period, key string }

// Stack pivots the view into one row per grouped period with one value per
// active key. Keys come back in rank order (or selection order) with
// "Other" last; rows come back ascending by period. Every row carries
// every key; missing buckets are null.
func (v *View) Stack(opts StackOptions) (*model.StackResult, error) {
	grouping, err := v.resolveGrouping(opts.Grouping)
	if err != nil {
		return nil, err
	}
	key, value, err := v.accessors(opts.Key, opts.Value, opts.Dimension)
	if err != nil {
		return nil, fmt.Errorf("stack: %w", err)
	}

	cells := make(map[cellKey]*accumulator)
	coverage := make(map[string]map[string]struct{}) // bucket → native periods present
	for _, r := range v.records {
		native := r.Period()
		bucket, err := period.Group(native, grouping)
		if err != nil {
			return nil, err
		}
		if coverage[bucket] == nil {
			coverage[bucket] = make(map[string]struct{})
		}
		coverage[bucket][native] = struct{}{}

		k := key(r)
		if k == "" {
			continue
		}
		ck := cellKey{bucket, k}
		acc := cells[ck]
		if acc == nil {
			acc = &accumulator{}
			cells[ck] = acc
		}
		acc.add(native, value(r))
	}

	ranked := v.rankKeys(key, value, opts.Dimension)
	rankedKeys := make([]string, len(ranked))
	for i, kt := range ranked {
		rankedKeys[i] = kt.Key
	}

	active := resolveKeys(rankedKeys, opts.Selected, opts.Excluded, opts.Top)
	isActive := make(map[string]bool, len(active))
	for _, k := range active {
		isActive[k] = true
	}
	var rest []string
	for _, k := range rankedKeys {
		if !isActive[k] {
			rest = append(rest, k)
		}
	}

	keys := append([]string(nil), active...)
	withOther := opts.IncludeOther && len(rest) > 0
	if withOther {
		keys = append(keys, OtherKey)
	}

	buckets := make([]string, 0, len(coverage))
	for b := range coverage {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	if opts.DropIncomplete {
		buckets = trimIncomplete(buckets, coverage, v.native, opts.PreserveLatestIncomplete)
	}

	series := make([]model.Row, 0, len(buckets))
	for _, b := range buckets {
		values := make(map[string]model.Number, len(keys))
		for _, k := range active {
			if acc := cells[cellKey{b, k}]; acc != nil {
				values[k] = acc.value(opts.Mode)
			} else {
				values[k] = model.Null
			}
		}
		if withOther {
			var other model.Number
			for _, k := range rest {
				if acc := cells[cellKey{b, k}]; acc != nil {
					other = other.Add(acc.value(opts.Mode))
				}
			}
			values[OtherKey] = other
		}
		series = append(series, model.Row{Period: b, Values: values})
	}

	metaLabels := v.meta.Labels(opts.Dimension)
	labels := make(map[string]string, len(keys))
	for _, k := range active {
		if l, ok := metaLabels[k]; ok {
			labels[k] = l
		} else {
			labels[k] = k
		}
	}
	if withOther {
		labels[OtherKey] = OtherKey
	}

	return &model.StackResult{Keys: keys, Labels: labels, Series: series}, nil
}

// trimIncomplete drops leading and trailing buckets whose native coverage
// is partial. Partial buckets in the middle of the series are kept as
// ordinary rows. With preserveLatest the most recent bucket stays even when
// partial; any partial buckets just before it are still trimmed.
func trimIncomplete(buckets []string, coverage map[string]map[string]struct{}, native period.Granularity, preserveLatest bool) []string {
	complete := func(b string) bool {
		k, err := period.Parse(b)
		if err != nil {
			return true
		}
		return len(coverage[b]) >= period.Span(k, native)
	}

	var latest string
	keepLatest := preserveLatest && len(buckets) > 0
	if keepLatest {
		latest = buckets[len(buckets)-1]
		buckets = buckets[:len(buckets)-1]
	}

	lo, hi := 0, len(buckets)
	for lo < hi && !complete(buckets[lo]) {
		lo++
	}
	for hi > lo && !complete(buckets[hi-1]) {
		hi--
	}
	out := make([]string, 0, hi-lo+1)
	out = append(out, buckets[lo:hi]...)
	if keepLatest {
		out = append(out, latest)
	}
	return out
}
