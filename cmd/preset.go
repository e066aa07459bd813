package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/render"
	"github.com/derickschaefer/atlas/internal/store"
)

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Save and replay view command lines",
	Long: `Presets save an atlas command line under a name so a view can be replayed
later with the same dataset, window, grouping and key selection.

Everything after "--" is saved verbatim:

  atlas preset save --name q-top5 -- stack sales --group quarterly --top 5 --other
  atlas preset list
  atlas preset run q-top5`,
}

// ─── preset save ──────────────────────────────────────────────────────────────

var presetSaveName string

var presetSaveCmd = &cobra.Command{
	Use:   "save --name <NAME> -- <COMMAND...>",
	Short: "Save a command line as a named preset",
	Example: `  atlas preset save --name sales-yearly -- aggregate sales --group yearly
  atlas preset save --name top-regions -- chart stack sales --top 4 --other --last 24`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if presetSaveName == "" {
			return fmt.Errorf("--name is required")
		}
		if err := validatePresetArgs(args); err != nil {
			return err
		}

		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()
		s, err := deps.RequireStore()
		if err != nil {
			return err
		}

		if _, ok, err := s.FindPreset(presetSaveName); err != nil {
			return fmt.Errorf("reading presets: %w", err)
		} else if ok {
			return fmt.Errorf("a preset named %q already exists (delete it first)", presetSaveName)
		}

		p := store.NewPreset(presetSaveName, args)
		if err := s.PutPreset(p); err != nil {
			return fmt.Errorf("saving preset: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved preset %s  (%s)\n", store.ShortID(p.ID), p.Name)
		return nil
	},
}

// validatePresetArgs rejects command lines that do not name a view command.
func validatePresetArgs(args []string) error {
	target, _, err := rootCmd.Find(args)
	if err != nil {
		return fmt.Errorf("not an atlas command: %s", strings.Join(args, " "))
	}
	if target == rootCmd || !target.Runnable() {
		return fmt.Errorf("%q does not name a runnable atlas command", strings.Join(args, " "))
	}
	if target == presetCmd || target.HasParent() && target.Parent() == presetCmd {
		return fmt.Errorf("presets cannot run other preset commands")
	}
	return nil
}

// ─── preset list ──────────────────────────────────────────────────────────────

var presetListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all saved presets",
	Example: `  atlas preset list`,
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

		presets, err := s.ListPresets()
		if err != nil {
			return fmt.Errorf("listing presets: %w", err)
		}
		if len(presets) == 0 && resolveFormat(deps.Config.Format) == render.FormatTable {
			fmt.Fprintln(cmd.OutOrStdout(), "No presets saved.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: atlas preset save --name <name> -- <command...>")
			return nil
		}
		return emit(cmd, deps, presetResult(commandLine(cmd, args), store.PresetList(presets), len(presets)))
	},
}

// ─── preset show ──────────────────────────────────────────────────────────────

var presetShowCmd = &cobra.Command{
	Use:     "show <ID|NAME>",
	Short:   "Show full details of a preset",
	Example: `  atlas preset show sales-yearly`,
	Args:    cobra.ExactArgs(1),
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

		p, err := findPreset(s, args[0])
		if err != nil {
			return err
		}
		return emit(cmd, deps, presetResult(commandLine(cmd, args), p, 1))
	},
}

// ─── preset run ───────────────────────────────────────────────────────────────

var presetRunCmd = &cobra.Command{
	Use:   "run <ID|NAME> [-- EXTRA_ARGS...]",
	Short: "Re-execute a saved preset",
	Long: `Re-execute a saved preset with the current binary. Arguments after "--"
are appended to the saved command line, so output flags can be changed per
run.`,
	Example: `  atlas preset run sales-yearly
  atlas preset run sales-yearly -- --format csv --out sales.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		s, err := deps.RequireStore()
		if err != nil {
			deps.Close()
			return err
		}

		// Read the preset BEFORE closing the store
		p, err := findPreset(s, args[0])
		deps.Close() // the child process opens its own handle
		if err != nil {
			return err
		}

		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("finding executable: %w", err)
		}

		argv := append(append([]string(nil), p.Args...), args[1:]...)
		c := exec.CommandContext(cmd.Context(), self, argv...)
		c.Stdin = os.Stdin
		c.Stdout = cmd.OutOrStdout()
		c.Stderr = cmd.ErrOrStderr()

		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "▶ atlas %s\n\n", strings.Join(argv, " "))
		}
		return c.Run()
	},
}

// ─── preset delete ────────────────────────────────────────────────────────────

var presetDeleteCmd = &cobra.Command{
	Use:     "delete <ID|NAME>",
	Short:   "Delete a saved preset",
	Example: `  atlas preset delete sales-yearly`,
	Args:    cobra.ExactArgs(1),
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

		p, err := findPreset(s, args[0])
		if err != nil {
			return err
		}
		if err := s.DeletePreset(p.ID); err != nil {
			return fmt.Errorf("deleting preset: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted preset %s  (%s)\n", store.ShortID(p.ID), p.Name)
		return nil
	},
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func findPreset(s *store.Store, ref string) (store.Preset, error) {
	p, ok, err := s.FindPreset(ref)
	if err != nil {
		return store.Preset{}, fmt.Errorf("reading preset: %w", err)
	}
	if !ok {
		return store.Preset{}, fmt.Errorf("preset %q not found", ref)
	}
	return p, nil
}

func presetResult(command string, data any, items int) *model.Result {
	return &model.Result{
		Kind:        model.KindTable,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        data,
		Stats:       model.ResultStats{Items: items},
	}
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(presetCmd)
	presetCmd.AddCommand(presetSaveCmd)
	presetCmd.AddCommand(presetListCmd)
	presetCmd.AddCommand(presetShowCmd)
	presetCmd.AddCommand(presetRunCmd)
	presetCmd.AddCommand(presetDeleteCmd)

	presetSaveCmd.Flags().StringVar(&presetSaveName, "name", "", "name for the preset (required)")
	presetSaveCmd.MarkFlagRequired("name")
}
