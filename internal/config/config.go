package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// CacheDir is the writable root the asset store keeps per-language
	// manifests and blobs under.
	CacheDir string `toml:"cache_dir"`
	// BundledDir holds the read-only content shipped with the client; the
	// unzip stage materializes from here.
	BundledDir string `toml:"bundled_dir"`
	LogDir     string `toml:"log_dir"`
}

// Remote contains CDN settings for the download stage.
type Remote struct {
	BaseURL        string `toml:"base_url"`
	Platform       string `toml:"platform"`
	Language       string `toml:"language"`
	RequestTimeout int    `toml:"request_timeout"`
	FetchRetries   int    `toml:"fetch_retries"`
}

// Pipeline contains orchestrator behaviour switches.
type Pipeline struct {
	VerifyOnLoad    bool `toml:"verify_on_load"`
	WriteRestricted bool `toml:"write_restricted"`
	// ConfirmTimeout bounds how long the confirmation gate waits, in seconds.
	// Zero waits until the prompt is answered.
	ConfirmTimeout int `toml:"confirm_timeout"`
}

// Network contains metered-network detection settings.
type Network struct {
	// Metered is one of auto, always, never.
	Metered         string   `toml:"metered"`
	MeteredDevTypes []string `toml:"metered_devtypes"`
}

// Store contains reference asset store settings.
type Store struct {
	RuntimeCodec string `toml:"runtime_codec"`
	MinFreeMiB   int    `toml:"min_free_mib"`
}

// Scene contains scene transition defaults.
type Scene struct {
	DefaultScene   string `toml:"default_scene"`
	WaitForLoaders bool   `toml:"wait_for_loaders"`
	TickMillis     int    `toml:"tick_millis"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// API contains the status/confirmation HTTP server settings.
type API struct {
	Bind string `toml:"bind"`
	// Token, when set, is required as a bearer token on every request.
	Token string `toml:"token"`
}

// Config encapsulates all configuration values for assetflow.
//
// Configuration sections by subsystem:
//   - Paths: cache, bundled content and log directories
//   - Remote: CDN base URL, platform/language path segments, fetch policy
//   - Pipeline: verify and confirmation behaviour
//   - Network: metered network classification
//   - Store: runtime codec and free-space floor
//   - Scene: transition defaults
//   - Logging: log format and level
//   - API: status server bind address
type Config struct {
	Paths    Paths    `toml:"paths"`
	Remote   Remote   `toml:"remote"`
	Pipeline Pipeline `toml:"pipeline"`
	Network  Network  `toml:"network"`
	Store    Store    `toml:"store"`
	Scene    Scene    `toml:"scene"`
	Logging  Logging  `toml:"logging"`
	API      API      `toml:"api"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("assetflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the writable directories the store and logger need.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.LogDir, c.StoreRoot()} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StoreRoot returns the per-language asset store directory.
func (c *Config) StoreRoot() string {
	if c.Remote.Language == "" {
		return c.Paths.CacheDir
	}
	return filepath.Join(c.Paths.CacheDir, c.Remote.Language)
}

// AssetBaseURL composes {base_url}/{platform}/{language}. It returns "" when
// no CDN is configured, which disables the download stage.
func (c *Config) AssetBaseURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	if base == "" {
		return ""
	}
	parts := []string{base}
	if c.Remote.Platform != "" {
		parts = append(parts, c.Remote.Platform)
	}
	if c.Remote.Language != "" {
		parts = append(parts, c.Remote.Language)
	}
	return strings.Join(parts, "/")
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Remote.RequestTimeout) * time.Second
}

// ConfirmTimeout returns the confirmation gate timeout; zero means no timeout.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Pipeline.ConfirmTimeout) * time.Second
}

// SceneTick returns the scheduling tick of the scene state machine.
func (c *Config) SceneTick() time.Duration {
	return time.Duration(c.Scene.TickMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
