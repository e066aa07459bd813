package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/derickschaefer/atlas/internal/catalog"
	"github.com/derickschaefer/atlas/internal/config"
	"github.com/derickschaefer/atlas/internal/dataset"
	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/period"
)

func TestOutputWriterDefault(t *testing.T) {
	globalFlags.Out = ""
	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter default: %v", err)
	}
	if w != os.Stdout {
		t.Fatalf("expected stdout writer passthrough")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("default closer should be nil error, got: %v", err)
	}
}

func TestOutputWriterFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.txt")
	globalFlags.Out = p
	t.Cleanup(func() { globalFlags.Out = "" })

	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter file: %v", err)
	}
	if w == os.Stdout {
		t.Fatalf("expected file writer, got stdout")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("closing output writer: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

func TestResolveFormat(t *testing.T) {
	orig := isTTY
	t.Cleanup(func() {
		isTTY = orig
		globalFlags.Format = ""
		globalFlags.Out = ""
	})

	cases := []struct {
		name   string
		tty    bool
		flag   string
		out    string
		cfg    string
		expect string
	}{
		{"explicit flag wins", false, "csv", "", "md", "csv"},
		{"piped defaults to jsonl", false, "", "", "table", "jsonl"},
		{"piped with --out uses config", false, "", "x.md", "md", "md"},
		{"terminal uses config", true, "", "", "md", "md"},
		{"terminal falls back to table", true, "", "", "", "table"},
	}
	for _, tc := range cases {
		tty := tc.tty
		isTTY = func() bool { return tty }
		globalFlags.Format = tc.flag
		globalFlags.Out = tc.out
		if got := resolveFormat(tc.cfg); got != tc.expect {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.expect)
		}
	}
}

func TestSetConfigKeyValidates(t *testing.T) {
	var f config.File

	if err := setConfigKey(&f, "format", "xml"); err == nil {
		t.Fatal("expected unknown format to be rejected")
	}
	if err := setConfigKey(&f, "rate", "-1"); err == nil {
		t.Fatal("expected negative rate to be rejected")
	}
	if err := setConfigKey(&f, "timeout", "soon"); err == nil {
		t.Fatal("expected malformed duration to be rejected")
	}
	if err := setConfigKey(&f, "colour", "blue"); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}

	if err := setConfigKey(&f, "format", "md"); err != nil {
		t.Fatalf("setting format: %v", err)
	}
	if err := setConfigKey(&f, "rate", "2.5"); err != nil {
		t.Fatalf("setting rate: %v", err)
	}
	if f.DefaultFormat != "md" || f.Rate != 2.5 {
		t.Fatalf("unexpected file after set: %+v", f)
	}
}

func TestValidatePresetArgs(t *testing.T) {
	if err := validatePresetArgs([]string{"stack", "sales", "--top", "5"}); err != nil {
		t.Fatalf("stack command should be accepted: %v", err)
	}
	rejected := [][]string{
		{"preset", "list"},
		{"config"},
		{"no-such-command"},
	}
	for _, args := range rejected {
		if err := validatePresetArgs(args); err == nil {
			t.Errorf("expected %q to be rejected", strings.Join(args, " "))
		}
	}
}

func TestViewOptionsResolvesWindows(t *testing.T) {
	var recs []model.Record
	for i := 0; i < 14; i++ {
		k, err := period.Shift("2023-01", i)
		if err != nil {
			t.Fatal(err)
		}
		recs = append(recs, model.Record{"period": k, "sales": float64(i)})
	}
	v := dataset.FromRecords(model.Meta{Granularity: period.Monthly}, recs...)

	opts := viewOptions(v)
	if opts.First != "2023-01" || opts.Last != "2024-02" || opts.Count != 14 {
		t.Fatalf("unexpected coverage: %+v", opts)
	}
	if len(opts.Ranges) != 2 {
		t.Fatalf("expected Last 12 months + All, got %+v", opts.Ranges)
	}
	if r := opts.Ranges[0]; r.Count != 12 || r.Start != "2023-03" || r.End != "2024-02" {
		t.Fatalf("unexpected 12-month window: %+v", r)
	}
	if r := opts.Ranges[1]; r.Count != 0 || r.Start != "2023-01" {
		t.Fatalf("unexpected All window: %+v", r)
	}
	if len(opts.Groupings) != 3 || opts.Groupings[0] != period.Monthly {
		t.Fatalf("unexpected groupings: %v", opts.Groupings)
	}
}

func TestDatasetCompletionsFilterByPrefix(t *testing.T) {
	cat := &catalog.Catalog{Datasets: []catalog.Entry{
		{ID: "sales", Title: "Monthly sales", Ref: "sales.json"},
		{ID: "staff", Ref: "staff.json"},
		{ID: "unemployment", Ref: "u.json"},
	}}
	got := datasetCompletions(cat, "s")
	want := []string{"sales\tMonthly sales", "staff"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := datasetCompletions(cat, "x"); len(got) != 0 {
		t.Fatalf("expected no completions, got %q", got)
	}
}

// ─── End to end ───────────────────────────────────────────────────────────────

func TestAggregateCommandCSV(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, k := range []string{config.EnvBaseURL, config.EnvDBPath, config.EnvRedisURL, config.EnvCatalog, config.EnvLocale} {
		t.Setenv(k, "")
	}

	payload := `{
  "meta": {"id": "sales", "nativeGranularity": "monthly", "metricFields": ["sales"]},
  "records": [
    {"period": "2024-01", "region": "n", "sales": 10},
    {"period": "2024-02", "region": "n", "sales": 20},
    {"period": "2024-03", "region": "n", "sales": 30},
    {"period": "2024-04", "region": "n", "sales": 5}
  ]
}`
	data := filepath.Join(dir, "sales.json")
	if err := os.WriteFile(data, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{
		"aggregate", data,
		"--group", "quarterly",
		"--format", "csv",
		"--db", filepath.Join(dir, "atlas.db"),
	})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		globalFlags.Format = ""
		globalFlags.DBPath = ""
		aggregateView = viewFlags{}
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("aggregate: %v (stderr: %s)", err, errOut.String())
	}
	want := "period,sales\n2024-Q1,60\n2024-Q2,5\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", out.String(), want)
	}
	if _, err := os.Stat(filepath.Join(dir, "atlas.db")); err != nil {
		t.Fatalf("expected the store to be created: %v", err)
	}
}
