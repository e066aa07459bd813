package cmd

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/config"
	"github.com/derickschaefer/atlas/internal/model"
	"github.com/derickschaefer/atlas/internal/render"
)

// Version is the release string, overwritten at build time:
//
//	go build -ldflags "-X github.com/derickschaefer/atlas/cmd.Version=v0.4.0"
var Version = "v0.3.0"

// BuildTime is optionally injected alongside Version.
var BuildTime = ""

type versionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	BuildTime string `json:"build_time,omitempty"`
}

func (v versionInfo) Table() model.Table {
	t := model.Table{
		Columns: []string{"FIELD", "VALUE"},
		Rows: [][]string{
			{"atlas", v.Version},
			{"go", v.GoVersion},
			{"os", v.Platform},
		},
	}
	if v.BuildTime != "" {
		t.Rows = append(t.Rows, []string{"built", v.BuildTime})
	}
	return t
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the atlas version and build information",
	Long: `Print the atlas version string and build metadata. Without --format the
output is plain text, one value per line.`,
	Example: `  atlas version
  atlas version --format json | jq .data.version`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{
			Version:   Version,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			BuildTime: BuildTime,
		}
		out := cmd.OutOrStdout()

		if globalFlags.Format == "" {
			for _, row := range info.Table().Rows {
				fmt.Fprintf(out, "%-7s %s\n", row[0], row[1])
			}
			return nil
		}
		if !config.ValidFormat(globalFlags.Format) {
			return fmt.Errorf("unknown format %q", globalFlags.Format)
		}
		return render.Render(out, &model.Result{
			Kind:        model.KindTable,
			GeneratedAt: time.Now(),
			Command:     "version",
			Data:        info,
		}, globalFlags.Format, render.Options{})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
