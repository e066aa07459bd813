package cmd

import (
	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/dataset"
	"github.com/derickschaefer/atlas/internal/model"
)

var periodsCmd = &cobra.Command{
	Use:     "periods <DATASET>",
	Aliases: []string{"options"},
	Short:   "Show period coverage, trailing windows and groupings",
	Long: `Show the period coverage of a dataset and the view controls it supports:
the trailing windows (with the literal first and last period each selects)
and the granularities it can be grouped to.`,
	Example: `  atlas periods sales
  atlas periods unemployment --format json`,
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
		opts := viewOptions(l.view)
		return emit(cmd, deps, l.result(model.KindOptions, commandLine(cmd, args), opts, len(opts.Ranges)))
	},
}

// viewOptions collects the controls v supports. Windows that cannot be
// resolved (an empty view) are left out.
func viewOptions(v *dataset.View) model.ViewOptions {
	c := v.Coverage()
	out := model.ViewOptions{
		Granularity: c.Granularity,
		First:       c.First,
		Last:        c.Last,
		Count:       c.Count,
		Groupings:   v.GroupingOptions(),
	}
	for _, o := range v.RangeOptions() {
		start, end, err := v.Window(o)
		if err != nil {
			continue
		}
		out.Ranges = append(out.Ranges, model.RangeOption{Label: o.Label, Count: o.Count, Start: start, End: end})
	}
	return out
}

func init() {
	rootCmd.AddCommand(periodsCmd)
}
