package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRemote(); err != nil {
		return err
	}
	c.normalizeNetwork()
	c.normalizeStore()
	c.normalizeScene()
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Token == "" {
		c.API.Token = strings.TrimSpace(os.Getenv("ASSETFLOW_API_TOKEN"))
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.BundledDir, err = expandPath(strings.TrimSpace(c.Paths.BundledDir)); err != nil {
		return fmt.Errorf("paths.bundled_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRemote() error {
	c.Remote.BaseURL = strings.TrimSpace(c.Remote.BaseURL)
	if c.Remote.BaseURL == "" {
		if value, ok := os.LookupEnv("ASSETFLOW_CDN_URL"); ok {
			c.Remote.BaseURL = strings.TrimSpace(value)
		}
	}
	c.Remote.BaseURL = strings.TrimRight(c.Remote.BaseURL, "/")

	c.Remote.Platform = strings.Trim(strings.TrimSpace(c.Remote.Platform), "/")
	if c.Remote.Platform == "" {
		c.Remote.Platform = defaultPlatform
	}

	if value, ok := os.LookupEnv("ASSETFLOW_LANGUAGE"); ok && strings.TrimSpace(value) != "" {
		c.Remote.Language = value
	}
	lang := strings.TrimSpace(c.Remote.Language)
	if lang == "" {
		lang = defaultLanguage
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("remote.language: %q is not a BCP 47 tag: %w", lang, err)
	}
	c.Remote.Language = tag.String()

	if c.Remote.RequestTimeout <= 0 {
		c.Remote.RequestTimeout = defaultRequestTimeout
	}
	if c.Remote.FetchRetries < 0 {
		c.Remote.FetchRetries = 0
	}
	return nil
}

func (c *Config) normalizeNetwork() {
	c.Network.Metered = strings.ToLower(strings.TrimSpace(c.Network.Metered))
	if c.Network.Metered == "" {
		c.Network.Metered = defaultMeteredMode
	}
	devtypes := make([]string, 0, len(c.Network.MeteredDevTypes))
	seen := make(map[string]struct{}, len(c.Network.MeteredDevTypes))
	for _, dt := range c.Network.MeteredDevTypes {
		normalized := strings.ToLower(strings.TrimSpace(dt))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		devtypes = append(devtypes, normalized)
	}
	if len(devtypes) == 0 {
		devtypes = []string{defaultMeteredDevType}
	}
	c.Network.MeteredDevTypes = devtypes
}

func (c *Config) normalizeStore() {
	c.Store.RuntimeCodec = strings.ToLower(strings.TrimSpace(c.Store.RuntimeCodec))
	if c.Store.RuntimeCodec == "" {
		c.Store.RuntimeCodec = defaultRuntimeCodec
	}
	if c.Store.MinFreeMiB < 0 {
		c.Store.MinFreeMiB = 0
	}
}

func (c *Config) normalizeScene() {
	c.Scene.DefaultScene = strings.TrimSpace(c.Scene.DefaultScene)
	if c.Scene.TickMillis <= 0 {
		c.Scene.TickMillis = defaultSceneTickMillis
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
