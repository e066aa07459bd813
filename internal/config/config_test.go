package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/atlas/internal/config"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// chdir switches the working directory to dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

// writeConfig writes a config.json into dir and changes the working directory
// to dir so config.Load() finds it.
func writeConfig(t *testing.T, dir string, f config.File) {
	t.Helper()
	if err := config.WriteFile(filepath.Join(dir, "config.json"), f); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chdir(t, dir)
}

// clearEnv unsets every ATLAS_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		config.EnvBaseURL, config.EnvToken, config.EnvDBPath,
		config.EnvRedisURL, config.EnvLocale, config.EnvCatalog,
	} {
		t.Setenv(k, "")
	}
}

// ─── Defaults ─────────────────────────────────────────────────────────────────

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Format != config.DefaultFormat {
		t.Errorf("Format: expected %q, got %q", config.DefaultFormat, cfg.Format)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("Timeout: expected %v, got %v", config.DefaultTimeout, cfg.Timeout)
	}
	if cfg.Rate != config.DefaultRate {
		t.Errorf("Rate: expected %g, got %g", config.DefaultRate, cfg.Rate)
	}
	if cfg.CacheTTL != config.DefaultCacheTTL {
		t.Errorf("CacheTTL: expected %v, got %v", config.DefaultCacheTTL, cfg.CacheTTL)
	}
	if cfg.Locale != config.DefaultLocale {
		t.Errorf("Locale: expected %q, got %q", config.DefaultLocale, cfg.Locale)
	}
	if cfg.BaseURL != config.DefaultBaseURL {
		t.Errorf("BaseURL: expected default, got %q", cfg.BaseURL)
	}
	if cfg.DBPath == "" {
		t.Error("DBPath should have a default (home dir based) value")
	}
	if cfg.ConfigPath != "" {
		t.Errorf("ConfigPath should be empty when no file found, got %q", cfg.ConfigPath)
	}
}

// ─── Config file loading ──────────────────────────────────────────────────────

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{
		BaseURL:       "https://custom.example.com/",
		Token:         "filetoken",
		DefaultFormat: "json",
		Timeout:       "60s",
		Rate:          2.5,
		DBPath:        "/tmp/test.db",
		RedisURL:      "redis://localhost:6379/0",
		CacheTTL:      "15m",
		Catalog:       "datasets.yaml",
		Locale:        "de",
	})

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://custom.example.com/" {
		t.Errorf("BaseURL: got %q", cfg.BaseURL)
	}
	if cfg.Token != "filetoken" {
		t.Errorf("Token: got %q", cfg.Token)
	}
	if cfg.Format != "json" {
		t.Errorf("Format: expected json, got %q", cfg.Format)
	}
	if cfg.Timeout != time.Minute {
		t.Errorf("Timeout: expected 1m0s, got %v", cfg.Timeout)
	}
	if cfg.Rate != 2.5 {
		t.Errorf("Rate: expected 2.5, got %g", cfg.Rate)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath: got %q", cfg.DBPath)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL: got %q", cfg.RedisURL)
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Errorf("CacheTTL: expected 15m, got %v", cfg.CacheTTL)
	}
	if cfg.Catalog != "datasets.yaml" {
		t.Errorf("Catalog: got %q", cfg.Catalog)
	}
	if cfg.Locale != "de" {
		t.Errorf("Locale: got %q", cfg.Locale)
	}
	if !strings.Contains(cfg.ConfigPath, "config.json") {
		t.Errorf("ConfigPath should contain config.json, got %q", cfg.ConfigPath)
	}
}

func TestLoadInvalidDurationsIgnored(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{Timeout: "not-a-duration", CacheTTL: "soon"})

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("invalid timeout should use default %v, got %v", config.DefaultTimeout, cfg.Timeout)
	}
	if cfg.CacheTTL != config.DefaultCacheTTL {
		t.Errorf("invalid cache_ttl should use default %v, got %v", config.DefaultCacheTTL, cfg.CacheTTL)
	}
}

func TestLoadMalformedFileErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	if _, err := config.Load(config.Flags{}); err == nil {
		t.Error("malformed config.json should be reported")
	}
}

// ─── Layer priority ───────────────────────────────────────────────────────────

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{BaseURL: "https://file.example.com/", Locale: "fr"})
	t.Setenv(config.EnvBaseURL, "https://env.example.com/")
	t.Setenv(config.EnvLocale, "es")
	t.Setenv(config.EnvDBPath, "/custom/path/atlas.db")

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://env.example.com/" {
		t.Errorf("ATLAS_BASE_URL should override file, got %q", cfg.BaseURL)
	}
	if cfg.Locale != "es" {
		t.Errorf("ATLAS_LOCALE should override file, got %q", cfg.Locale)
	}
	if cfg.DBPath != "/custom/path/atlas.db" {
		t.Errorf("ATLAS_DB_PATH: got %q", cfg.DBPath)
	}
}

func TestLoadFlagsOverrideEnvAndFile(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{Catalog: "file.yaml"})
	t.Setenv(config.EnvCatalog, "env.yaml")
	t.Setenv(config.EnvRedisURL, "redis://env:6379")

	cfg, err := config.Load(config.Flags{Catalog: "flag.yaml", RedisURL: "redis://flag:6379"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Catalog != "flag.yaml" {
		t.Errorf("--catalog should win, got %q", cfg.Catalog)
	}
	if cfg.RedisURL != "redis://flag:6379" {
		t.Errorf("--redis should win, got %q", cfg.RedisURL)
	}
}

func TestLoadEmptyFlagDoesNotOverride(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{Locale: "nl"})

	cfg, err := config.Load(config.Flags{Locale: ""})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Locale != "nl" {
		t.Errorf("empty flag should not override file value, got %q", cfg.Locale)
	}
}

// ─── Validate ─────────────────────────────────────────────────────────────────

func validConfig() *config.Config {
	return &config.Config{
		BaseURL: config.DefaultBaseURL,
		Format:  "table",
		Rate:    1,
		Timeout: time.Second,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*config.Config){
		"base url scheme": func(c *config.Config) { c.BaseURL = "ftp://example.com" },
		"format":          func(c *config.Config) { c.Format = "xml" },
		"rate":            func(c *config.Config) { c.Rate = 0 },
		"timeout":         func(c *config.Config) { c.Timeout = 0 },
		"redis url":       func(c *config.Config) { c.RedisURL = "localhost:6379" },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

// ─── RedactedToken ────────────────────────────────────────────────────────────

func TestRedactedToken(t *testing.T) {
	cfg := &config.Config{Token: "abcdefghij"}
	redacted := cfg.RedactedToken()
	if !strings.HasPrefix(redacted, "ab") || !strings.HasSuffix(redacted, "ij") {
		t.Errorf("redacted token should keep 2 chars each end, got %q", redacted)
	}
	if redacted == cfg.Token {
		t.Error("redacted token should not equal the original")
	}

	for _, tok := range []string{"a", "abcd"} {
		cfg := &config.Config{Token: tok}
		if cfg.RedactedToken() != "****" {
			t.Errorf("short token %q should redact to '****', got %q", tok, cfg.RedactedToken())
		}
	}
	if (&config.Config{}).RedactedToken() != "" {
		t.Error("empty token should stay empty")
	}
}

// ─── WriteFile / Template ─────────────────────────────────────────────────────

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	f := config.File{
		BaseURL:       "https://api.example.com/",
		DefaultFormat: "csv",
		Timeout:       "45s",
		Rate:          3.0,
		DBPath:        "/data/atlas.db",
		Locale:        "it",
	}
	if err := config.WriteFile(path, f); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got config.File
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if got != f {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, f)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file permissions: expected 0600, got %04o", info.Mode().Perm())
	}
}

func TestTemplateDefaults(t *testing.T) {
	tmpl := config.Template()
	if tmpl.DefaultFormat != "table" {
		t.Errorf("Template.DefaultFormat: expected table, got %q", tmpl.DefaultFormat)
	}
	if tmpl.Timeout != "30s" {
		t.Errorf("Template.Timeout: expected 30s, got %q", tmpl.Timeout)
	}
	if tmpl.Rate != config.DefaultRate {
		t.Errorf("Template.Rate: expected %g, got %g", config.DefaultRate, tmpl.Rate)
	}
	if tmpl.Token != "" {
		t.Error("Template must not carry a token")
	}
}
