package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/store"
	"github.com/derickschaefer/atlas/internal/util"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the dataset cache",
	Long: `Commands for inspecting and clearing the local bbolt store and the shared
redis cache.

Every fetched snapshot is stored by its resolved reference, so repeated
views of the same dataset read from disk. Use --refresh on any command to
re-fetch, or --no-cache to bypass the cache entirely.`,
}

// ─── cache stats ──────────────────────────────────────────────────────────────

// bucketTable lays bucket stats out for the renderer.
type bucketTable []store.BucketStats

func (b bucketTable) Table() model.Table {
	t := model.Table{Columns: []string{"BUCKET", "ROWS", "SIZE"}, Right: []bool{false, true, true}}
	for _, s := range b {
		t.Rows = append(t.Rows, []string{s.Name, strconv.Itoa(s.Count), util.HumanBytes(s.Bytes)})
	}
	return t
}

var cacheStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show row counts and sizes for each bucket",
	Example: `  atlas cache stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()
		s, err := deps.RequireStore()
		if err != nil {
			return err
		}

		stats, err := s.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}

		// Sort by bucket name for deterministic output
		sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

		return emit(cmd, deps, &model.Result{
			Kind:        model.KindTable,
			GeneratedAt: time.Now(),
			Command:     commandLine(cmd, args),
			Dataset:     s.Path(),
			Data:        bucketTable(stats),
			Stats:       model.ResultStats{Items: len(stats)},
		})
	},
}

// ─── cache list ───────────────────────────────────────────────────────────────

var cacheListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List cached dataset snapshots",
	Example: `  atlas cache list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()
		s, err := deps.RequireStore()
		if err != nil {
			return err
		}

		infos, err := s.ListDatasets()
		if err != nil {
			return fmt.Errorf("listing datasets: %w", err)
		}
		return emit(cmd, deps, &model.Result{
			Kind:        model.KindDatasets,
			GeneratedAt: time.Now(),
			Command:     commandLine(cmd, args),
			Dataset:     s.Path(),
			Data:        store.DatasetList(infos),
			Stats:       model.ResultStats{Items: len(infos)},
		})
	},
}

// ─── cache clear ──────────────────────────────────────────────────────────────

var (
	cacheClearAll    bool
	cacheClearBucket string
	cacheClearRef    string
	cacheClearRedis  bool
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete entries from the cache",
	Long: `Delete one cached dataset, one bucket, or everything.

Note: bbolt does not shrink the database file automatically after clearing.
Free pages are reused internally on the next write. To reclaim disk space,
run 'atlas cache compact' after clearing.`,
	Example: `  atlas cache clear --all
  atlas cache clear --bucket datasets
  atlas cache clear --ref https://cdn.example.org/snapshots/sales.json
  atlas cache clear --redis`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cacheClearAll && cacheClearBucket == "" && cacheClearRef == "" && !cacheClearRedis {
			return fmt.Errorf("specify --all, --bucket <name>, --ref <ref> or --redis\n\nBuckets: datasets, presets")
		}

		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()
		out := cmd.OutOrStdout()

		if cacheClearRedis {
			if deps.Redis == nil {
				return fmt.Errorf("no redis cache configured (set ATLAS_REDIS_URL or --redis-url)")
			}
			n, err := deps.Redis.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("clearing redis cache: %w", err)
			}
			fmt.Fprintf(out, "✓ Removed %d redis entries\n", n)
			if !cacheClearAll && cacheClearBucket == "" && cacheClearRef == "" {
				return nil
			}
		}

		s, err := deps.RequireStore()
		if err != nil {
			return err
		}
		switch {
		case cacheClearAll:
			if err := s.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintln(out, "✓ Cleared all buckets")
		case cacheClearBucket != "":
			if err := s.ClearBucket(cacheClearBucket); err != nil {
				return fmt.Errorf("clearing bucket %q: %w", cacheClearBucket, err)
			}
			fmt.Fprintf(out, "✓ Cleared bucket %q\n", cacheClearBucket)
		default:
			key := deps.Fetcher.CacheKey(deps.Catalog.Resolve(cacheClearRef).Ref)
			if err := s.DeleteDataset(key); err != nil {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
			fmt.Fprintf(out, "✓ Removed %s\n", key)
		}
		fmt.Fprintln(out, "  Run 'atlas cache compact' to reclaim disk space.")
		return nil
	},
}

// ─── cache compact ────────────────────────────────────────────────────────────

var cacheCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the database file to reclaim freed disk space",
	Long: `Compact rewrites the entire bbolt database to a new file, recovering space
freed by prior 'cache clear' operations.

bbolt uses copy-on-write and never shrinks the database file automatically.
Deleted pages are added to an internal freelist and reused on future writes.

All live data is copied to a temporary file first, then the original is
replaced. The database remains fully usable after compaction completes.`,
	Example: `  atlas cache compact`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()
		s, err := deps.RequireStore()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Compacting %s ...\n", s.Path())

		before, after, err := s.Compact()
		if err != nil {
			return fmt.Errorf("compaction failed: %w", err)
		}

		saved := before - after
		fmt.Fprintf(out, "✓ Compaction complete\n")
		fmt.Fprintf(out, "  Before: %s\n", util.HumanBytes(before))
		fmt.Fprintf(out, "  After:  %s\n", util.HumanBytes(after))
		if saved > 0 {
			fmt.Fprintf(out, "  Saved:  %s\n", util.HumanBytes(saved))
		} else {
			fmt.Fprintln(out, "  No space reclaimed (database was already compact).")
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCompactCmd)

	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "clear all buckets")
	cacheClearCmd.Flags().StringVar(&cacheClearBucket, "bucket", "", "clear a specific bucket: datasets|presets")
	cacheClearCmd.Flags().StringVar(&cacheClearRef, "ref", "", "remove one cached dataset (catalog id, name or reference)")
	cacheClearCmd.Flags().BoolVar(&cacheClearRedis, "redis", false, "flush atlas entries from the shared redis cache")
}
