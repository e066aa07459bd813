package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/app"
	"github.com/derickschaefer/atlas/internal/chart"
	"github.com/derickschaefer/atlas/internal/render"
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render a dataset view as an ASCII chart",
	Long: `Chart commands derive the same views as aggregate and stack and draw them
in the terminal. Period labels follow --locale. "-" reads the JSONL pipe
format from stdin.

Examples:
  atlas chart bar sales --group yearly
  atlas chart stack sales --dimension region --group quarterly --top 4 --other
  atlas chart plot unemployment --last 60 --title "Unemployment, 5y"`,
}

var (
	chartWidth   int
	chartMaxBars int
)

// ─── chart bar ───────────────────────────────────────────────────────────────

var chartBarView viewFlags

var chartBarCmd = &cobra.Command{
	Use:   "bar <DATASET>",
	Short: "Horizontal bar chart, one bar per grouped period",
	Long: `Renders a horizontal bar chart of one metric with one labeled bar per
grouped period. Best suited to quarterly or yearly groupings; use --group
to coarsen monthly or daily data.

Negative values extend left from a zero baseline. Null periods are drawn
as gaps.`,
	Example: `  atlas chart bar sales --group yearly
  atlas chart bar sales --metric cost --group quarterly --max-bars 8`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		l, err := loadView(cmd, deps, args[0], &chartBarView)
		if err != nil {
			return err
		}
		field, err := l.metric()
		if err != nil {
			return err
		}
		rs, g, err := l.aggregate(field)
		if err != nil {
			return err
		}
		return drawChart(cmd, args, deps, l, func(w io.Writer) error {
			return chart.Bar(w, field, rs.Rows, chart.BarOptions{
				Width:   chartWidth,
				MaxBars: chartMaxBars,
				Label:   labeler(deps, g),
			})
		})
	},
}

// ─── chart stack ─────────────────────────────────────────────────────────────

var chartStackView viewFlags

var chartStackCmd = &cobra.Command{
	Use:   "stack <DATASET>",
	Short: "Stacked bar chart, one glyph per dimension key",
	Long: `Renders the stack view as horizontal stacked bars: one bar per grouped
period, one glyph per key, with a legend of key labels. Takes the same key
selection flags as the stack command. Only positive values are drawn.`,
	Example: `  atlas chart stack sales --group quarterly --top 4 --other
  atlas chart stack sales --select A,B,C --last 12`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		l, err := loadView(cmd, deps, args[0], &chartStackView)
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
		return drawChart(cmd, args, deps, l, func(w io.Writer) error {
			return chart.StackedBar(w, s, chart.BarOptions{
				Width:   chartWidth,
				MaxBars: chartMaxBars,
				Label:   labeler(deps, opts.Grouping),
			})
		})
	},
}

// ─── chart plot ──────────────────────────────────────────────────────────────

var (
	chartPlotView   viewFlags
	chartPlotHeight int
	chartPlotTitle  string
)

var chartPlotCmd = &cobra.Command{
	Use:   "plot <DATASET>",
	Short: "Multi-line ASCII line plot of one metric",
	Example: `  atlas chart plot unemployment
  atlas chart plot sales --group quarterly --height 16 --title "Sales by quarter"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		l, err := loadView(cmd, deps, args[0], &chartPlotView)
		if err != nil {
			return err
		}
		field, err := l.metric()
		if err != nil {
			return err
		}
		rs, g, err := l.aggregate(field)
		if err != nil {
			return err
		}
		return drawChart(cmd, args, deps, l, func(w io.Writer) error {
			return chart.Plot(w, field, rs.Rows, chart.PlotOptions{
				Width:  chartWidth,
				Height: chartPlotHeight,
				Title:  chartPlotTitle,
				Label:  labeler(deps, g),
			})
		})
	},
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// drawChart runs draw against the output writer, then prints the footer.
func drawChart(cmd *cobra.Command, args []string, deps *app.Deps, l *loaded, draw func(io.Writer) error) error {
	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := draw(w); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}
	if !deps.Config.Quiet {
		render.PrintFooter(cmd.ErrOrStderr(), l.result("chart", commandLine(cmd, args), nil, l.view.Len()), deps.Config.Verbose)
	}
	return nil
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartBarCmd)
	chartCmd.AddCommand(chartStackCmd)
	chartCmd.AddCommand(chartPlotCmd)

	chartCmd.PersistentFlags().IntVar(&chartWidth, "width", 0, "chart width in columns (default: $COLUMNS or 80)")
	chartBarView.register(chartBarCmd, false)
	chartBarCmd.Flags().IntVar(&chartMaxBars, "max-bars", 0, "show only the most recent N bars (0 = all)")
	chartStackView.register(chartStackCmd, true)
	chartStackCmd.Flags().IntVar(&chartMaxBars, "max-bars", 0, "show only the most recent N bars (0 = all)")
	chartPlotView.register(chartPlotCmd, false)
	chartPlotCmd.Flags().IntVar(&chartPlotHeight, "height", 12, "plot height in rows")
	chartPlotCmd.Flags().StringVar(&chartPlotTitle, "title", "", "chart title (default: the metric name)")
}
