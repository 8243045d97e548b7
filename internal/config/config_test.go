package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"assetflow/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("ASSETFLOW_CDN_URL", "")
	t.Setenv("ASSETFLOW_LANGUAGE", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantCache := filepath.Join(tempHome, ".local", "share", "assetflow", "cache")
	if cfg.Paths.CacheDir != wantCache {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, wantCache)
	}
	if cfg.StoreRoot() != filepath.Join(wantCache, "en") {
		t.Fatalf("unexpected store root: %q", cfg.StoreRoot())
	}
	if cfg.AssetBaseURL() != "" {
		t.Fatalf("expected no asset base url without CDN, got %q", cfg.AssetBaseURL())
	}
	if cfg.Network.Metered != "auto" {
		t.Fatalf("unexpected metered mode: %q", cfg.Network.Metered)
	}
	if cfg.SceneTick().Milliseconds() != 16 {
		t.Fatalf("unexpected scene tick: %v", cfg.SceneTick())
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("ASSETFLOW_CDN_URL", "")
	t.Setenv("ASSETFLOW_LANGUAGE", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
cache_dir = "~/cache"

[remote]
base_url = "https://cdn.example.com/assets/"
platform = "/android/"
language = "pt-br"

[pipeline]
verify_on_load = true
confirm_timeout = 30

[network]
metered = "ALWAYS"
metered_devtypes = ["WWAN", "wwan", " ppp "]

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.CacheDir != filepath.Join(tempHome, "cache") {
		t.Fatalf("unexpected cache dir: %q", cfg.Paths.CacheDir)
	}
	if cfg.Remote.Language != "pt-BR" {
		t.Fatalf("expected canonical language tag, got %q", cfg.Remote.Language)
	}
	if got, want := cfg.AssetBaseURL(), "https://cdn.example.com/assets/android/pt-BR"; got != want {
		t.Fatalf("unexpected asset base url: got %q want %q", got, want)
	}
	if cfg.StoreRoot() != filepath.Join(tempHome, "cache", "pt-BR") {
		t.Fatalf("unexpected store root: %q", cfg.StoreRoot())
	}
	if !cfg.Pipeline.VerifyOnLoad {
		t.Fatal("expected verify_on_load to be true")
	}
	if cfg.ConfirmTimeout().Seconds() != 30 {
		t.Fatalf("unexpected confirm timeout: %v", cfg.ConfirmTimeout())
	}
	if cfg.Network.Metered != "always" {
		t.Fatalf("unexpected metered mode: %q", cfg.Network.Metered)
	}
	if strings.Join(cfg.Network.MeteredDevTypes, ",") != "wwan,ppp" {
		t.Fatalf("unexpected devtypes: %v", cfg.Network.MeteredDevTypes)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestEnvironmentFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ASSETFLOW_CDN_URL", "http://cdn.local/")
	t.Setenv("ASSETFLOW_LANGUAGE", "ja")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got, want := cfg.AssetBaseURL(), "http://cdn.local/linux/ja"; got != want {
		t.Fatalf("unexpected asset base url: got %q want %q", got, want)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"metered":      func(c *config.Config) { c.Network.Metered = "sometimes" },
		"codec":        func(c *config.Config) { c.Store.RuntimeCodec = "brotli" },
		"log format":   func(c *config.Config) { c.Logging.Format = "xml" },
		"log level":    func(c *config.Config) { c.Logging.Level = "trace" },
		"base url":     func(c *config.Config) { c.Remote.BaseURL = "ftp://cdn.example.com" },
		"timeout":      func(c *config.Config) { c.Remote.RequestTimeout = 0 },
		"confirm wait": func(c *config.Config) { c.Pipeline.ConfirmTimeout = -1 },
		"cache dir":    func(c *config.Config) { c.Paths.CacheDir = "  " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestLoadRejectsInvalidLanguage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ASSETFLOW_LANGUAGE", "")
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[remote]\nlanguage = \"not a tag!\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected invalid language to fail")
	}
}

func TestCreateSampleProducesParseableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Store.RuntimeCodec != "lz4" {
		t.Fatalf("unexpected sample runtime codec: %q", cfg.Store.RuntimeCodec)
	}
}

func TestEnsureDirectoriesCreatesStoreRoot(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Remote.Language = "de"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.CacheDir, cfg.Paths.LogDir, filepath.Join(cfg.Paths.CacheDir, "de")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
