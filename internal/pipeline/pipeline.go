// Package pipeline provides helpers for reading and writing record streams
// via stdin/stdout in JSONL format, the canonical pipe format. One flat
// JSON object per line: a "period" key plus dimension and metric fields,
// with null for unknown values.
package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/derickschaefer/atlas/internal/model"
)

// ReadRecords reads JSONL records from r. Blank lines and lines starting
// with "//" are skipped. Every record must carry a string "period".
func ReadRecords(r io.Reader) ([]model.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var out []model.Record
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("line %d: expected an object", lineNum)
		}
		if rec.Period() == "" {
			return nil, fmt.Errorf("line %d: missing %q field", lineNum, model.PeriodField)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no records read from input (is stdin empty?)")
	}
	return out, nil
}

// LooksLikeJSONL reports whether payload holds more than one top-level
// JSON object, one per line.
func LooksLikeJSONL(payload []byte) bool {
	payload = bytes.TrimSpace(payload)
	first, rest, ok := bytes.Cut(payload, []byte("\n"))
	if !ok || len(bytes.TrimSpace(rest)) == 0 {
		return false
	}
	first = bytes.TrimSpace(first)
	return len(first) > 1 && first[0] == '{' && first[len(first)-1] == '}' && json.Valid(first)
}

// WriteRecords writes records as JSONL to w.
func WriteRecords(w io.Writer, records []model.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteRows writes aggregated rows as flat JSONL objects, one per period,
// with a key per field.
func WriteRows(w io.Writer, fields []string, rows []model.Row) error {
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(flatten(row, fields)); err != nil {
			return err
		}
	}
	return nil
}

// WriteStack writes a stacked series as flat JSONL objects, one per period,
// with a key per stack key.
func WriteStack(w io.Writer, s *model.StackResult) error {
	return WriteRows(w, s.Keys, s.Series)
}

func flatten(row model.Row, fields []string) map[string]any {
	rec := make(map[string]any, len(fields)+1)
	rec[model.PeriodField] = row.Period
	for _, f := range fields {
		rec[f] = row.Values[f].Ptr()
	}
	return rec
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
