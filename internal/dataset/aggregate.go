package dataset

import (
	"sort"

	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/period"
)

// AggField is one output column of an aggregation.
type AggField struct {
	Name  string        // output key in Row.Values
	Value ValueAccessor // nil reads the record field Name
	Mode  Mode          // zero value is Sum
}

func (f AggField) accessor() ValueAccessor {
	if f.Value != nil {
		return f.Value
	}
	return Field(f.Name)
}

// AggregateOptions configures Aggregate.
type AggregateOptions struct {
	// Grouping is the output granularity. The zero value keeps native.
	Grouping period.Granularity
	// Fields lists the output columns. When empty, every metric declared
	// in meta is summed.
	Fields []AggField
}

// Aggregate groups records by period at opts.Grouping and folds each field
// per group. One row is emitted per distinct grouped period, ascending.
// A group whose values for a field are all null yields null, not zero.
// Grouping finer than native returns period.ErrFinerGranularity.
func (v *View) Aggregate(opts AggregateOptions) ([]model.Row, error) {
	grouping, err := v.resolveGrouping(opts.Grouping)
	if err != nil {
		return nil, err
	}
	fields := opts.Fields
	if len(fields) == 0 {
		for _, m := range v.meta.Metrics {
			fields = append(fields, AggField{Name: m})
		}
	}
	accessors := make([]ValueAccessor, len(fields))
	for i, f := range fields {
		accessors[i] = f.accessor()
	}

	groups := make(map[string][]accumulator)
	for _, r := range v.records {
		p, err := period.Group(r.Period(), grouping)
		if err != nil {
			return nil, err
		}
		accs, ok := groups[p]
		if !ok {
			accs = make([]accumulator, len(fields))
			groups[p] = accs
		}
		for i, get := range accessors {
			accs[i].add(r.Period(), get(r))
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]model.Row, 0, len(keys))
	for _, k := range keys {
		accs := groups[k]
		values := make(map[string]model.Number, len(fields))
		for i, f := range fields {
			values[f.Name] = accs[i].value(f.Mode)
		}
		rows = append(rows, model.Row{Period: k, Values: values})
	}
	return rows, nil
}
