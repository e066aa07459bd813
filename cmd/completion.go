package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/app"
	"github.com/derickschaefer/atlas/internal/catalog"
)

// completionCmd wraps Cobra's built-in shell completion generator.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for atlas. Dataset arguments complete
to the ids in the catalog.

  source <(atlas completion bash)
  source <(atlas completion zsh)
  atlas completion fish | source`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(out, true)
		case "zsh":
			return root.GenZshCompletion(out)
		case "fish":
			return root.GenFishCompletion(out, true)
		default:
			return root.GenPowerShellCompletionWithDesc(out)
		}
	},
}

// completeDatasets offers catalog ids (with titles) for the first argument.
// Paths and URLs fall through to the shell's file completion.
func completeDatasets(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, cobra.ShellCompDirectiveDefault
	}
	cat, err := app.LoadCatalog(cfg.Catalog)
	if err != nil || cat == nil {
		return nil, cobra.ShellCompDirectiveDefault
	}
	return datasetCompletions(cat, toComplete), cobra.ShellCompDirectiveDefault
}

func datasetCompletions(cat *catalog.Catalog, prefix string) []string {
	var out []string
	for _, e := range cat.Datasets {
		if !strings.HasPrefix(e.ID, prefix) {
			continue
		}
		if e.Title != "" {
			out = append(out, e.ID+"\t"+e.Title)
		} else {
			out = append(out, e.ID)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(completionCmd)

	for _, c := range []*cobra.Command{
		metaCmd, periodsCmd, aggregateCmd, stackCmd, summarizeCmd,
		analyzeSummaryCmd, analyzeTrendCmd,
		chartBarCmd, chartStackCmd, chartPlotCmd,
		catalogShowCmd,
	} {
		c.ValidArgsFunction = completeDatasets
	}
}
