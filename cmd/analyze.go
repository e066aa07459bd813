package cmd

import (
	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/analyze"
	"github.com/derickschaefer/atlas/internal/app"
	"github.com/derickschaefer/atlas/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Statistics and trends over one aggregated metric",
	Long: `Analyze commands aggregate one metric of a dataset at the requested grouping
and compute statistics over the resulting column. "-" reads the JSONL pipe
format from stdin, so the output of aggregate or stack can be analyzed
directly.

Examples:
  atlas analyze summary sales --group quarterly
  atlas aggregate sales --format jsonl | atlas analyze trend - --metric sales`,
}

// ─── analyze summary ─────────────────────────────────────────────────────────

var analyzeSummaryView viewFlags

var analyzeSummaryCmd = &cobra.Command{
	Use:   "summary <DATASET>",
	Short: "Descriptive statistics: count, mean, std, percentiles, change",
	Example: `  atlas analyze summary sales --metric sales --group yearly
  atlas stack sales --format jsonl | atlas analyze summary - --metric A`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		l, field, pts, err := loadColumn(cmd, deps, args[0], &analyzeSummaryView)
		if err != nil {
			return err
		}
		s := analyze.Summarize(field, pts)
		return emit(cmd, deps, l.result(model.KindSummary, commandLine(cmd, args), s, s.Count))
	},
}

// ─── analyze trend ────────────────────────────────────────────────────────────

var (
	analyzeTrendView   viewFlags
	analyzeTrendMethod string
)

var analyzeTrendCmd = &cobra.Command{
	Use:   "trend <DATASET>",
	Short: "Fit a trend: slope per year, intercept, R², direction",
	Long: `Fit a trend line through one aggregated metric. X values are calendar days
between period starts, so the slope is comparable across groupings and is
reported per year. theil-sen takes the median pairwise slope and resists
outliers.`,
	Example: `  atlas analyze trend sales --group quarterly
  atlas analyze trend unemployment --method theil-sen --last 60`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := analyze.ParseTrendMethod(analyzeTrendMethod)
		if err != nil {
			return err
		}
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		l, field, pts, err := loadColumn(cmd, deps, args[0], &analyzeTrendView)
		if err != nil {
			return err
		}
		tr, err := analyze.Trend(field, pts, method)
		if err != nil {
			return err
		}
		return emit(cmd, deps, l.result(model.KindSummary, commandLine(cmd, args), tr, tr.Points))
	},
}

// loadColumn aggregates the single metric a command analyzes.
func loadColumn(cmd *cobra.Command, deps *app.Deps, ref string, vf *viewFlags) (*loaded, string, []analyze.Point, error) {
	l, err := loadView(cmd, deps, ref, vf)
	if err != nil {
		return nil, "", nil, err
	}
	field, err := l.metric()
	if err != nil {
		return nil, "", nil, err
	}
	rs, _, err := l.aggregate(field)
	if err != nil {
		return nil, "", nil, err
	}
	return l, field, analyze.Column(rs.Rows, field), nil
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeSummaryCmd)
	analyzeCmd.AddCommand(analyzeTrendCmd)

	analyzeSummaryView.register(analyzeSummaryCmd, false)
	analyzeTrendView.register(analyzeTrendCmd, false)
	analyzeTrendCmd.Flags().StringVar(&analyzeTrendMethod, "method", "linear",
		"regression method: linear|theil-sen")
}
