package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/app"
	"github.com/derickschaefer/atlas/internal/catalog"
	"github.com/derickschaefer/atlas/internal/model"
)

var errNoCatalog = errors.New("no catalog loaded (create ./catalog.yaml or pass --catalog)")

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the datasets named in the catalog",
	Long: `The catalog is a YAML file that gives short ids to snapshot references and
carries the default view settings for each (dimension, metric, grouping,
mode, top). Any command taking a dataset accepts a catalog id.

  datasets:
    - id: sales
      title: Monthly sales by region
      ref: https://cdn.example.org/snapshots/sales.json
      tags: [retail]
      dimension: region
      metric: sales`,
}

// ─── catalog list ─────────────────────────────────────────────────────────────

var catalogListTag string

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog datasets, optionally filtered by tag",
	Example: `  atlas catalog list
  atlas catalog list --tag retail --format md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()
		if deps.Catalog == nil {
			return errNoCatalog
		}

		entries := catalog.Entries(deps.Catalog.Filter(catalogListTag))
		return emit(cmd, deps, catalogResult(deps, commandLine(cmd, args), entries, len(entries)))
	},
}

// ─── catalog show ─────────────────────────────────────────────────────────────

var catalogShowCmd = &cobra.Command{
	Use:     "show <ID>",
	Short:   "Show one catalog entry",
	Example: `  atlas catalog show sales`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()
		if deps.Catalog == nil {
			return errNoCatalog
		}

		e, err := deps.Catalog.Lookup(args[0])
		if err != nil {
			return err
		}
		return emit(cmd, deps, catalogResult(deps, commandLine(cmd, args), e, 1))
	},
}

func catalogResult(deps *app.Deps, command string, data any, items int) *model.Result {
	return &model.Result{
		Kind:        model.KindCatalog,
		GeneratedAt: time.Now(),
		Command:     command,
		Dataset:     deps.Catalog.Path,
		Data:        data,
		Stats:       model.ResultStats{Items: items},
	}
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogShowCmd)

	catalogListCmd.Flags().StringVar(&catalogListTag, "tag", "", "only list datasets carrying this tag")
}
