package cmd

import (
	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/dataset"
	"github.com/derickschaefer/atlas/internal/model"
)

var summarizeView viewFlags

var summarizeCmd = &cobra.Command{
	Use:   "summarize <DATASET>",
	Short: "Rank dimension keys by their total over the window",
	Long: `Total each key of a dimension across every record in the window and list
the keys in the same rank order stack uses, with each key's share of the
grand total.`,
	Example: `  atlas summarize sales --dimension region
  atlas summarize sales --last 12 --top 10 --format csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		l, err := loadView(cmd, deps, args[0], &summarizeView)
		if err != nil {
			return err
		}
		dim, err := l.dimension()
		if err != nil {
			return err
		}
		metric, err := l.metric()
		if err != nil {
			return err
		}
		totals, err := l.view.Summarize(dataset.SummarizeOptions{Dimension: dim, Value: dataset.Field(metric)})
		if err != nil {
			return err
		}
		if n := l.top(); n > 0 && n < len(totals) {
			totals = totals[:n]
		}
		return emit(cmd, deps, l.result(model.KindTotals, commandLine(cmd, args), totals, len(totals)))
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
	summarizeCmd.Flags().StringVar(&summarizeView.Last, "last", "", "trailing window: a period count or \"all\" (default: all)")
	summarizeCmd.Flags().StringVar(&summarizeView.Metric, "metric", "", "metric field to total (default: catalog, then first declared metric)")
	summarizeCmd.Flags().StringVar(&summarizeView.Dimension, "dimension", "", "dimension to rank (default: catalog, then first declared dimension)")
	summarizeCmd.Flags().IntVar(&summarizeView.Top, "top", 0, "list only the N highest-ranked keys (0 = all)")
}
