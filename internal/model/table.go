package model

import "github.com/derickschaefer/atlas/internal/period"

// RowSet is an aggregation result with its column order.
type RowSet struct {
	Fields []string `json:"fields"`
	Rows   []Row    `json:"rows"`
}

// ─── View Options ─────────────────────────────────────────────────────────────

// RangeOption is one selectable trailing window with its literal bounds.
// Count is 0 for "All".
type RangeOption struct {
	Label string `json:"label"`
	Count int    `json:"count"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// ViewOptions lists the controls a dataset supports: its period coverage,
// the trailing windows on offer, and the granularities it can be grouped to.
type ViewOptions struct {
	Granularity period.Granularity   `json:"granularity"`
	First       string               `json:"first"`
	Last        string               `json:"last"`
	Count       int                  `json:"count"`
	Ranges      []RangeOption        `json:"ranges"`
	Groupings   []period.Granularity `json:"groupings"`
}

// ─── Generic Tables ───────────────────────────────────────────────────────────

// Table is a pre-formatted grid for kinds the renderer has no dedicated
// layout for. Right marks columns to right-align. Footer, when set, is a
// summary row printed after Rows.
type Table struct {
	Columns []string
	Right   []bool
	Rows    [][]string
	Footer  []string
}

// Tabler is implemented by result payloads that know how to lay themselves
// out as a Table.
type Tabler interface {
	Table() Table
}
