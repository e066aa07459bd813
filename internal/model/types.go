// Package model defines the canonical data types used throughout atlas.
// A Dataset is the immutable {meta, records} payload published for one
// explorer page; Row, StackResult and KeyTotal are the plain values the
// view engine derives from it; Result is the envelope every command returns.
package model

import (
	"time"

	"github.com/derickschaefer/atlas/internal/period"
)

// ─── Dataset Types ────────────────────────────────────────────────────────────

// DimensionValue is one declared value of a categorical dimension.
type DimensionValue struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Meta describes a published dataset. Dimension value lists are ordered;
// that order is the tie-break for key ranking.
type Meta struct {
	ID          string                      `json:"id,omitempty"`
	Title       string                      `json:"title,omitempty"`
	Description string                      `json:"description,omitempty"`
	Units       string                      `json:"units,omitempty"`
	Granularity period.Granularity          `json:"nativeGranularity"`
	Metrics     []string                    `json:"metricFields,omitempty"`
	Dimensions  map[string][]DimensionValue `json:"dimensions,omitempty"`
	GeneratedAt time.Time                   `json:"generatedAt"`
	Source      string                      `json:"source,omitempty"`
	PeriodCount int                         `json:"periodCount"`
}

// Labels returns key → label for a dimension. Missing tables yield an
// empty map; callers fall back to the raw key.
func (m Meta) Labels(dimension string) map[string]string {
	vals := m.Dimensions[dimension]
	out := make(map[string]string, len(vals))
	for _, v := range vals {
		if v.Label != "" {
			out[v.Key] = v.Label
		}
	}
	return out
}

// Order returns key → declared position for a dimension. The first
// declaration of a key wins.
func (m Meta) Order(dimension string) map[string]int {
	vals := m.Dimensions[dimension]
	out := make(map[string]int, len(vals))
	for i, v := range vals {
		if _, ok := out[v.Key]; !ok {
			out[v.Key] = i
		}
	}
	return out
}

// DimensionNames returns the declared dimension names in sorted order.
func (m Meta) DimensionNames() []string {
	return sortedKeys(m.Dimensions)
}

// Dataset is the immutable payload for one explorer page.
type Dataset struct {
	Meta    Meta     `json:"meta"`
	Records []Record `json:"records"`
}

// ─── Derived Types ────────────────────────────────────────────────────────────

// Row is one output row of an aggregation: a grouped period and one value
// per requested field.
type Row struct {
	Period string            `json:"period"`
	Values map[string]Number `json:"values"`
}

// Total sums the row's values with null-aware addition.
func (r Row) Total() Number {
	var t Number
	for _, k := range sortedKeys(r.Values) {
		t = t.Add(r.Values[k])
	}
	return t
}

// StackResult is the wide, per-period pivot of a long record stream.
// Every series row holds exactly one entry per key in Keys.
type StackResult struct {
	Keys   []string          `json:"keys"`
	Labels map[string]string `json:"labelMap"`
	Series []Row             `json:"series"`
}

// Label returns the display label for key, falling back to the key itself.
func (s *StackResult) Label(key string) string {
	if l, ok := s.Labels[key]; ok && l != "" {
		return l
	}
	return key
}

// Totals sums each key across every row of the series.
func (s *StackResult) Totals() map[string]Number {
	out := make(map[string]Number, len(s.Keys))
	for _, k := range s.Keys {
		var t Number
		for _, row := range s.Series {
			t = t.Add(row.Values[k])
		}
		out[k] = t
	}
	return out
}

// KeyTotal is one ranked entry of a dimension summary.
type KeyTotal struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Total Number `json:"total"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance and cache metadata for a command result.
type ResultStats struct {
	CacheHit   bool  `json:"cache_hit"`
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Dataset     string      `json:"dataset,omitempty"`
	Grouping    string      `json:"grouping,omitempty"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindMeta     = "meta"
	KindRows     = "rows"
	KindStack    = "stack"
	KindTotals   = "totals"
	KindOptions  = "options"
	KindCatalog  = "catalog"
	KindSummary  = "summary"
	KindDatasets = "datasets"
	KindTable    = "table"
)
