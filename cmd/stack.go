package cmd

import (
	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/model"
)

var stackView viewFlags

var stackCmd = &cobra.Command{
	Use:   "stack <DATASET>",
	Short: "Pivot a dataset into one column per dimension key",
	Long: `Pivot a long record stream into one row per grouped period with one column
per key of a dimension. Keys are ranked by absolute total over the window;
--top keeps the N largest, --exclude hides keys before ranking is applied,
and --select shows exactly the listed keys in the listed order.

--other adds an "Other" column summing every hidden key, so row totals
match the unfiltered data. --drop-incomplete trims leading and trailing
buckets the native data does not fully cover.`,
	Example: `  atlas stack sales --dimension region --group quarterly --top 5 --other
  atlas stack sales --select A,C --last 24
  atlas stack headcount --group yearly --mode latest --drop-incomplete --keep-latest
  cat rows.jsonl | atlas stack - --dimension region --metric sales`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		l, err := loadView(cmd, deps, args[0], &stackView)
		if err != nil {
			return err
		}
		opts, err := l.stackOptions()
		if err != nil {
			return err
		}
		s, err := l.view.Stack(opts)
		if err != nil {
			return err
		}
		result := l.result(model.KindStack, commandLine(cmd, args), s, len(s.Series))
		result.Grouping = string(opts.Grouping)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(stackCmd)
	stackView.register(stackCmd, true)
}
