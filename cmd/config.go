package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/atlas/internal/app"
	"github.com/derickschaefer/atlas/internal/config"
	"github.com/derickschaefer/atlas/internal/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage atlas configuration",
	Long: `Read and write atlas configuration stored in config.json.

Resolution order (later layers win): config.json in the working directory,
ATLAS_* environment variables, then command-line flags.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Created %s\n", path)
		fmt.Fprintln(out, "  Set base_url to where your snapshots are published.")
		fmt.Fprintln(out, "  List datasets by id in catalog.yaml to use short names.")
		return nil
	},
}

// ─── config show ──────────────────────────────────────────────────────────────

var configShowSecrets bool

// configView is the resolved configuration as shown to the user.
type configView struct {
	BaseURL    string  `json:"base_url"`
	Token      string  `json:"token"`
	Format     string  `json:"default_format"`
	Timeout    string  `json:"timeout"`
	Rate       float64 `json:"rate"`
	DBPath     string  `json:"db_path"`
	RedisURL   string  `json:"redis_url"`
	CacheTTL   string  `json:"cache_ttl"`
	Catalog    string  `json:"catalog"`
	Locale     string  `json:"locale"`
	ConfigFile string  `json:"config_file"`
}

func (v configView) Table() model.Table {
	return model.Table{
		Columns: []string{"KEY", "VALUE"},
		Rows: [][]string{
			{"base_url", v.BaseURL},
			{"token", v.Token},
			{"default_format", v.Format},
			{"timeout", v.Timeout},
			{"rate", strconv.FormatFloat(v.Rate, 'f', 1, 64) + " req/s"},
			{"db_path", v.DBPath},
			{"redis_url", v.RedisURL},
			{"cache_ttl", v.CacheTTL},
			{"catalog", v.Catalog},
			{"locale", v.Locale},
			{"config_file", v.ConfigFile},
		},
	}
}

func newConfigView(cfg *config.Config, showSecrets bool) configView {
	notSet := func(s string) string {
		if s == "" {
			return "(not set)"
		}
		return s
	}
	token := cfg.RedactedToken()
	if showSecrets {
		token = cfg.Token
	}
	cat := cfg.Catalog
	if cat == "" {
		cat = app.DefaultCatalogFile + " (if present)"
	}
	src := "(not found)"
	if cfg.ConfigPath != "" {
		src = cfg.ConfigPath
	}
	return configView{
		BaseURL:    cfg.BaseURL,
		Token:      notSet(token),
		Format:     cfg.Format,
		Timeout:    cfg.Timeout.String(),
		Rate:       cfg.Rate,
		DBPath:     cfg.DBPath,
		RedisURL:   notSet(cfg.RedisURL),
		CacheTTL:   cfg.CacheTTL.String(),
		Catalog:    cat,
		Locale:     cfg.Locale,
		ConfigFile: src,
	}
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"get"},
	Short:   "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		deps := &app.Deps{Config: cfg}
		return emit(cmd, deps, &model.Result{
			Kind:        model.KindTable,
			GeneratedAt: time.Now(),
			Command:     commandLine(cmd, args),
			Data:        newConfigView(cfg, configShowSecrets),
		})
	},
}

// ─── config set ───────────────────────────────────────────────────────────────

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Example: `  atlas config set base_url https://data.example.org/snapshots/
  atlas config set locale de
  atlas config set cache_ttl 24h`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])
		val := args[1]

		// Load existing file or start from template
		var f config.File
		existing, path, err := loadConfigFile()
		if err != nil {
			path = config.DefaultConfigFile
			f = config.Template()
		} else {
			f = *existing
		}

		if err := setConfigKey(&f, key, val); err != nil {
			return err
		}
		if err := config.WriteFile(path, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

// setConfigKey validates val and stores it under key.
func setConfigKey(f *config.File, key, val string) error {
	switch key {
	case "base_url":
		f.BaseURL = val
	case "token":
		f.Token = val
	case "default_format", "format":
		if !config.ValidFormat(val) {
			return fmt.Errorf("unknown format %q (use %s)", val, strings.Join(config.Formats, "|"))
		}
		f.DefaultFormat = val
	case "timeout", "cache_ttl":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("%s must be a duration such as 30s or 6h", key)
		}
		if key == "timeout" {
			f.Timeout = val
		} else {
			f.CacheTTL = val
		}
	case "rate":
		r, err := strconv.ParseFloat(val, 64)
		if err != nil || r <= 0 {
			return fmt.Errorf("rate must be a positive number")
		}
		f.Rate = r
	case "db_path":
		f.DBPath = val
	case "redis_url":
		f.RedisURL = val
	case "catalog":
		f.Catalog = val
	case "locale":
		f.Locale = val
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: base_url, token, default_format, timeout, rate, db_path, redis_url, cache_ttl, catalog, locale", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)

	configShowCmd.Flags().BoolVar(&configShowSecrets, "show-secrets", false, "show the access token in plain text")
}

// loadConfigFile reads config.json from cwd; used by configSetCmd.
func loadConfigFile() (*config.File, string, error) {
	path := config.DefaultConfigFile
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var f config.File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", err
	}
	return &f, path, nil
}
