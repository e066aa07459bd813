package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/period"
	"github.com/derickschaefer/atlas/internal/pipeline"
	"github.com/derickschaefer/atlas/internal/util"
)

var errNoMeta = errors.New("payload has no meta; granularity inferred and dimension labels unavailable")

// maxWarnings caps how many warnings Decode reports verbatim.
const maxWarnings = 20

type rawDataset struct {
	Meta    json.RawMessage   `json:"meta"`
	Records []json.RawMessage `json:"records"`
}

// Decode parses a {meta, records} payload. A JSONL stream of flat records
// (the pipe format) is accepted too and decodes with empty meta.
//
// Meta is read field by field: a field that does not parse is dropped with
// a warning and the rest of meta is kept. Records that are not JSON objects
// are dropped with a warning. Period validation, granularity inference and
// the period count are left to dataset.New.
func Decode(payload []byte) (*model.Dataset, []string, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, nil, errors.New("empty payload")
	}
	ds := &model.Dataset{}
	var warns util.MultiError

	if pipeline.LooksLikeJSONL(payload) {
		recs, err := pipeline.ReadRecords(bytes.NewReader(payload))
		if err != nil {
			return nil, nil, fmt.Errorf("decoding records: %w", err)
		}
		warns.Add(errNoMeta)
		ds.Records = recs
		return ds, summarize(&warns), nil
	}

	var raw rawDataset
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, nil, fmt.Errorf("decoding dataset: %w", err)
	}
	if raw.Records == nil {
		return nil, nil, errors.New("decoding dataset: payload has no records array")
	}
	if len(raw.Meta) > 0 && !bytes.Equal(raw.Meta, []byte("null")) {
		ds.Meta = decodeMeta(raw.Meta, &warns)
	} else {
		warns.Add(errNoMeta)
	}

	ds.Records = make([]model.Record, 0, len(raw.Records))
	for i, msg := range raw.Records {
		var r model.Record
		if err := json.Unmarshal(msg, &r); err != nil || r == nil {
			warns.Add(fmt.Errorf("record %d: not an object", i))
			continue
		}
		ds.Records = append(ds.Records, r)
	}
	return ds, summarize(&warns), nil
}

// ─── Meta ─────────────────────────────────────────────────────────────────────

// decodeMeta reads each known meta field on its own. Unknown fields are
// ignored.
func decodeMeta(b json.RawMessage, warns *util.MultiError) model.Meta {
	var m model.Meta
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		warns.Add(errors.New("meta is not an object; ignored"))
		return m
	}
	bad := func(name string, err error) {
		warns.Add(fmt.Errorf("meta.%s: %v; ignored", name, err))
	}

	for name, dst := range map[string]*string{
		"id": &m.ID, "title": &m.Title, "description": &m.Description,
		"units": &m.Units, "source": &m.Source,
	} {
		if v, ok := fields[name]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				bad(name, errors.New("not a string"))
			}
		}
	}

	if v, ok := fields["nativeGranularity"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			bad("nativeGranularity", errors.New("not a string"))
		} else if g, err := period.ParseGranularity(s); err != nil {
			bad("nativeGranularity", err)
		} else {
			m.Granularity = g
		}
	}

	if v, ok := fields["metricFields"]; ok {
		metrics, err := stringList(v)
		if err != nil {
			bad("metricFields", err)
		}
		m.Metrics = metrics
	}

	if v, ok := fields["dimensions"]; ok {
		var dims map[string]json.RawMessage
		if err := json.Unmarshal(v, &dims); err != nil {
			bad("dimensions", errors.New("not an object"))
		}
		for name, table := range dims {
			vals, err := dimensionValues(table)
			if err != nil {
				bad("dimensions."+name, err)
				continue
			}
			if m.Dimensions == nil {
				m.Dimensions = make(map[string][]model.DimensionValue)
			}
			m.Dimensions[name] = vals
		}
	}

	if v, ok := fields["generatedAt"]; ok {
		t, err := parseTimestamp(v)
		if err != nil {
			bad("generatedAt", err)
		}
		m.GeneratedAt = t
	}

	if v, ok := fields["periodCount"]; ok {
		n, err := parseCount(v)
		if err != nil {
			bad("periodCount", err)
		}
		m.PeriodCount = n
	}
	return m
}

// stringList accepts ["a","b"] or a single "a".
func stringList(b json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		return list, nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil && one != "" {
		return []string{one}, nil
	}
	return nil, errors.New("not a list of strings")
}

// dimensionValues accepts [{key,label}], ["key"], or {"key": "label"}.
// A map carries no order, so its keys are sorted.
func dimensionValues(b json.RawMessage) ([]model.DimensionValue, error) {
	var vals []model.DimensionValue
	if err := json.Unmarshal(b, &vals); err == nil {
		return vals, nil
	}
	var keys []string
	if err := json.Unmarshal(b, &keys); err == nil {
		vals = make([]model.DimensionValue, len(keys))
		for i, k := range keys {
			vals[i] = model.DimensionValue{Key: k}
		}
		return vals, nil
	}
	var labels map[string]string
	if err := json.Unmarshal(b, &labels); err == nil {
		keys = make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vals = make([]model.DimensionValue, len(keys))
		for i, k := range keys {
			vals[i] = model.DimensionValue{Key: k, Label: labels[k]}
		}
		return vals, nil
	}
	return nil, errors.New("expected a list of {key, label}, a list of keys, or a key → label object")
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// parseTimestamp accepts RFC 3339, a bare date or date-time, or Unix seconds.
func parseTimestamp(b json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var secs float64
		if err := json.Unmarshal(b, &secs); err != nil {
			return time.Time{}, errors.New("not a timestamp")
		}
		return time.Unix(int64(secs), 0).UTC(), nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// parseCount accepts a number or a numeric string.
func parseCount(b json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, errors.New("not a number")
		}
		n = json.Number(strings.TrimSpace(s))
	}
	v, err := strconv.Atoi(n.String())
	if err != nil || v < 0 {
		return 0, fmt.Errorf("not a non-negative integer: %q", n.String())
	}
	return v, nil
}

// summarize returns the first maxWarnings messages plus a count of the rest.
func summarize(m *util.MultiError) []string {
	msgs := m.Strings()
	if len(msgs) <= maxWarnings {
		return msgs
	}
	rest := len(msgs) - maxWarnings
	return append(msgs[:maxWarnings], fmt.Sprintf("… and %d more warnings", rest))
}
