package cmd

import (
	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/model"
)

var metaCmd = &cobra.Command{
	Use:   "meta <DATASET>",
	Short: "Show a dataset's meta block",
	Long: `Show the meta block published with a dataset: id, title, units, native
granularity, metric fields, declared dimensions and period count.`,
	Example: `  atlas meta sales
  atlas meta ./snapshots/sales.json --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		l, err := loadView(cmd, deps, args[0], nil)
		if err != nil {
			return err
		}
		meta := l.view.Meta()
		return emit(cmd, deps, l.result(model.KindMeta, commandLine(cmd, args), &meta, 1))
	},
}

func init() {
	rootCmd.AddCommand(metaCmd)
}
