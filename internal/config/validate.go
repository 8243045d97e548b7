package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateNetwork(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Pipeline.ConfirmTimeout < 0 {
		return errors.New("pipeline.confirm_timeout must be >= 0 (0 waits indefinitely)")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Remote.BaseURL != "" {
		parsed, err := url.Parse(c.Remote.BaseURL)
		if err != nil {
			return fmt.Errorf("remote.base_url: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("remote.base_url must use http or https, got %q", parsed.Scheme)
		}
		if parsed.Host == "" {
			return errors.New("remote.base_url must include a host")
		}
	}
	return ensurePositiveMap(map[string]int{
		"remote.request_timeout": c.Remote.RequestTimeout,
	})
}

func (c *Config) validateNetwork() error {
	switch c.Network.Metered {
	case "auto", "always", "never":
		return nil
	default:
		return fmt.Errorf("network.metered must be one of auto, always, never; got %q", c.Network.Metered)
	}
}

func (c *Config) validateStore() error {
	switch c.Store.RuntimeCodec {
	case "lz4", "none":
		return nil
	default:
		return fmt.Errorf("store.runtime_codec must be lz4 or none; got %q", c.Store.RuntimeCodec)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json; got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error; got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
