// Package cmd implements the atlas CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/app"
	"github.com/derickschaefer/atlas/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	Format   string
	Out      string
	NoCache  bool
	Refresh  bool
	Timeout  string
	Rate     float64
	Quiet    bool
	Verbose  bool
	Debug    bool
	DBPath   string
	RedisURL string
	Catalog  string
	Locale   string
	BaseURL  string
}

// rootCmd is the base command. Running `atlas` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "atlas",
	Short: "atlas — explore published time-series datasets from the terminal",
	Long: `atlas fetches published {meta, records} dataset snapshots and derives
views from them: grouped aggregations, stacked pivots by a dimension,
ranked totals, statistics and charts.

A dataset is named by a catalog id, a bare snapshot name (resolved against
base_url), an http(s) URL, an s3://bucket/key object, a local path, or "-"
for stdin. Fetched payloads are cached locally in bbolt and optionally in a
shared Redis.

Quick start:
  atlas config init                         # create a config.json
  atlas periods sales                       # coverage and view controls
  atlas stack sales --group quarterly --top 5 --other
  atlas aggregate sales --format jsonl | atlas analyze trend - --metric sales`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(globalFlags.Debug, globalFlags.Quiet)
	},
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupLogging installs a text handler on stderr. Debug wins over quiet.
func setupLogging(debug, quiet bool) {
	level := slog.LevelWarn
	switch {
	case debug:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}

// loadConfig resolves config from config.json, the environment and the
// global flags, and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Flags{
		BaseURL:  globalFlags.BaseURL,
		DBPath:   globalFlags.DBPath,
		RedisURL: globalFlags.RedisURL,
		Catalog:  globalFlags.Catalog,
		Locale:   globalFlags.Locale,
	})
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.NoCache = globalFlags.NoCache
	cfg.Refresh = globalFlags.Refresh
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout %q: %w", globalFlags.Timeout, err)
		}
		cfg.Timeout = d
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE; callers defer deps.Close().
func buildDeps(ctx context.Context) (*app.Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table, jsonl when piped)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.BoolVar(&globalFlags.NoCache, "no-cache", false,
		"bypass the dataset cache entirely")
	pf.BoolVar(&globalFlags.Refresh, "refresh", false,
		"force re-fetch and overwrite cached entries")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max fetch requests per second (default: 5.0)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show cache/timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log fetches, cache hits and skipped records to stderr")
	pf.StringVar(&globalFlags.DBPath, "db", "",
		"path of the local bbolt store (default: ~/.atlas/atlas.db)")
	pf.StringVar(&globalFlags.RedisURL, "redis-url", "",
		"shared redis cache URL (redis://host:6379/0)")
	pf.StringVar(&globalFlags.Catalog, "catalog", "",
		"catalog YAML file (default: ./catalog.yaml when present)")
	pf.StringVar(&globalFlags.Locale, "locale", "",
		"display locale for period labels and numbers (en, de, fr, es, it, pt, nl)")
	pf.StringVar(&globalFlags.BaseURL, "base-url", "",
		"base URL that bare snapshot names resolve against")
}
