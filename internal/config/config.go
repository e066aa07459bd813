// Package config handles loading and resolving atlas configuration.
// Resolution order (later layers win):
//  1. config.json in the current working directory
//  2. Environment variables ATLAS_*
//  3. CLI flags
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultConfigFile = "config.json"
	DefaultFormat     = "table"
	DefaultTimeout    = 30 * time.Second
	DefaultRate       = 5.0
	DefaultCacheTTL   = 6 * time.Hour
	DefaultLocale     = "en"
	DefaultBaseURL    = "https://data.atlas.example.org/snapshots/"

	EnvBaseURL  = "ATLAS_BASE_URL"
	EnvToken    = "ATLAS_TOKEN"
	EnvDBPath   = "ATLAS_DB_PATH"
	EnvRedisURL = "ATLAS_REDIS_URL"
	EnvLocale   = "ATLAS_LOCALE"
	EnvCatalog  = "ATLAS_CATALOG"
)

// Formats lists every output format the renderer understands.
var Formats = []string{"table", "json", "jsonl", "csv", "tsv", "md"}

// File is the on-disk representation of config.json.
type File struct {
	BaseURL       string  `json:"base_url"`
	Token         string  `json:"token,omitempty"`
	DefaultFormat string  `json:"default_format"`
	Timeout       string  `json:"timeout"`
	Rate          float64 `json:"rate"`
	DBPath        string  `json:"db_path,omitempty"`
	RedisURL      string  `json:"redis_url,omitempty"`
	CacheTTL      string  `json:"cache_ttl,omitempty"`
	Catalog       string  `json:"catalog,omitempty"`
	Locale        string  `json:"locale,omitempty"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	BaseURL    string
	Token      string
	Format     string
	Timeout    time.Duration
	Rate       float64
	DBPath     string
	RedisURL   string
	CacheTTL   time.Duration
	Catalog    string
	Locale     string
	ConfigPath string // path of the config.json that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	NoCache bool
	Refresh bool
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Flags carries the CLI flag values that participate in layering.
// Empty fields leave lower layers untouched.
type Flags struct {
	BaseURL  string
	DBPath   string
	RedisURL string
	Catalog  string
	Locale   string
}

// Load resolves configuration from all sources.
func Load(flags Flags) (*Config, error) {
	cfg := &Config{
		BaseURL:  DefaultBaseURL,
		Format:   DefaultFormat,
		Timeout:  DefaultTimeout,
		Rate:     DefaultRate,
		CacheTTL: DefaultCacheTTL,
		Locale:   DefaultLocale,
	}

	// Layer 1: config.json (lowest priority). A malformed file is an error;
	// a missing one is not.
	f, path, err := loadFile()
	switch {
	case err == nil:
		applyFile(cfg, f, path)
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	// Layer 2: environment variables
	setIf(&cfg.BaseURL, os.Getenv(EnvBaseURL))
	setIf(&cfg.Token, os.Getenv(EnvToken))
	setIf(&cfg.DBPath, os.Getenv(EnvDBPath))
	setIf(&cfg.RedisURL, os.Getenv(EnvRedisURL))
	setIf(&cfg.Locale, os.Getenv(EnvLocale))
	setIf(&cfg.Catalog, os.Getenv(EnvCatalog))

	// Layer 3: CLI flags (highest priority)
	setIf(&cfg.BaseURL, flags.BaseURL)
	setIf(&cfg.DBPath, flags.DBPath)
	setIf(&cfg.RedisURL, flags.RedisURL)
	setIf(&cfg.Catalog, flags.Catalog)
	setIf(&cfg.Locale, flags.Locale)

	// Set default DB path if still unset
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".atlas", "atlas.db")
		}
	}

	return cfg, nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("base_url %q must be an http(s) URL", c.BaseURL)
		}
	}
	if !ValidFormat(c.Format) {
		return fmt.Errorf("unknown format %q (use %s)", c.Format, strings.Join(Formats, "|"))
	}
	if c.Rate <= 0 {
		return fmt.Errorf("rate must be positive, got %g", c.Rate)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.RedisURL != "" && !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		return fmt.Errorf("redis_url %q must start with redis:// or rediss://", c.RedisURL)
	}
	return nil
}

// ValidFormat reports whether f names a known output format.
func ValidFormat(f string) bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// RedactedToken returns the access token with most characters replaced by
// asterisks. Safe for logging and display.
func (c *Config) RedactedToken() string {
	if c.Token == "" {
		return ""
	}
	if len(c.Token) <= 4 {
		return "****"
	}
	return c.Token[:2] + "****" + c.Token[len(c.Token)-2:]
}

// loadFile attempts to read config.json from the current working directory.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("config.json not found at %s: %w", path, os.ErrNotExist)
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, path, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	setIf(&cfg.BaseURL, f.BaseURL)
	setIf(&cfg.Token, f.Token)
	setIf(&cfg.Format, f.DefaultFormat)
	setIf(&cfg.DBPath, f.DBPath)
	setIf(&cfg.RedisURL, f.RedisURL)
	setIf(&cfg.Catalog, f.Catalog)
	setIf(&cfg.Locale, f.Locale)
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.CacheTTL != "" {
		if d, err := time.ParseDuration(f.CacheTTL); err == nil {
			cfg.CacheTTL = d
		}
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `atlas config init`.
func Template() File {
	return File{
		BaseURL:       DefaultBaseURL,
		DefaultFormat: DefaultFormat,
		Timeout:       DefaultTimeout.String(),
		Rate:          DefaultRate,
		CacheTTL:      DefaultCacheTTL.String(),
		Catalog:       "catalog.yaml",
		Locale:        DefaultLocale,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
