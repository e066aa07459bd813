package cmd

import (
	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/model"
)

var aggregateView viewFlags

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <DATASET>",
	Short: "Group a dataset by period and fold each metric",
	Long: `Group records by period at the requested granularity and fold each metric
field per group. Groups whose values are all null stay null rather than
becoming zero.

--mode latest keeps the value of the last native period in each group,
for point-in-time levels such as headcount or balances.`,
	Example: `  atlas aggregate sales --group quarterly
  atlas aggregate sales --metric sales,cost --group yearly --last 5
  atlas aggregate headcount --group quarterly --mode latest --format csv
  atlas aggregate sales --format jsonl | atlas analyze summary - --metric sales`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		l, err := loadView(cmd, deps, args[0], &aggregateView)
		if err != nil {
			return err
		}
		rs, g, err := l.aggregate()
		if err != nil {
			return err
		}
		result := l.result(model.KindRows, commandLine(cmd, args), rs, len(rs.Rows))
		result.Grouping = string(g)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	aggregateView.register(aggregateCmd, false)
}
