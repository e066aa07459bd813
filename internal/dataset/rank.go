package dataset

import (
	"errors"
	"math"
	"sort"

	"github.com/derickschaefer/atlas/internal/model"
)

// errNoKey is returned when neither a key accessor nor a dimension is given.
var errNoKey = errors.New("a key accessor or dimension name is required")

// errNoValue is returned when no value accessor is given and meta declares
// no metric to fall back to.
var errNoValue = errors.New("a value accessor is required (dataset declares no metric fields)")

// SummarizeOptions configures Summarize.
type SummarizeOptions struct {
	Key       KeyAccessor   // nil reads Dimension
	Value     ValueAccessor // nil reads the first declared metric
	Dimension string        // meta dimension used for labels and tie-breaks
}

// Summarize totals each key across every record in the view, ignoring
// period grouping. Entries come back in exactly the rank order Stack uses,
// so selection controls and charts never disagree.
func (v *View) Summarize(opts SummarizeOptions) ([]model.KeyTotal, error) {
	key, value, err := v.accessors(opts.Key, opts.Value, opts.Dimension)
	if err != nil {
		return nil, err
	}
	return v.rankKeys(key, value, opts.Dimension), nil
}

func (v *View) accessors(key KeyAccessor, value ValueAccessor, dimension string) (KeyAccessor, ValueAccessor, error) {
	if key == nil {
		if dimension == "" {
			return nil, nil, errNoKey
		}
		key = Dimension(dimension)
	}
	if value == nil {
		if len(v.meta.Metrics) == 0 {
			return nil, nil, errNoValue
		}
		value = Field(v.meta.Metrics[0])
	}
	return key, value, nil
}

// rankKeys totals values per key and orders keys by magnitude descending.
// Ties fall back to the key's position in meta's declared value list, then
// undeclared keys sort lexicographically. Input record order never matters.
func (v *View) rankKeys(key KeyAccessor, value ValueAccessor, dimension string) []model.KeyTotal {
	totals := make(map[string]model.Number)
	for _, r := range v.records {
		k := key(r)
		if k == "" {
			continue
		}
		totals[k] = totals[k].Add(value(r))
	}

	order := v.meta.Order(dimension)
	labels := v.meta.Labels(dimension)

	out := make([]model.KeyTotal, 0, len(totals))
	for k, t := range totals {
		label := labels[k]
		if label == "" {
			label = k
		}
		out = append(out, model.KeyTotal{Key: k, Label: label, Total: t})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Total.Valid != b.Total.Valid {
			return a.Total.Valid
		}
		if ma, mb := math.Abs(a.Total.Value), math.Abs(b.Total.Value); ma != mb {
			return ma > mb
		}
		oa, aDeclared := order[a.Key]
		ob, bDeclared := order[b.Key]
		switch {
		case aDeclared && bDeclared && oa != ob:
			return oa < ob
		case aDeclared != bDeclared:
			return aDeclared
		}
		return a.Key < b.Key
	})
	return out
}
