package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"assetflow/internal/assetstore"
	"assetflow/internal/config"
	"assetflow/internal/logging"
)

type commandContext struct {
	configFlag *string
	envFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, envFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
	}
}

// loadEnv loads the env file when it exists. Variables already set in the
// process environment win.
func (c *commandContext) loadEnv() error {
	if c.envFlag == nil {
		return nil
	}
	path := strings.TrimSpace(*c.envFlag)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// newLogger writes to the log file and, unless a progress bar owns the
// terminal, to stderr.
func (c *commandContext) newLogger(stderr bool) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg, stderr)
}

func (c *commandContext) openStore(ctx context.Context, logger *slog.Logger) (*assetstore.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return assetstore.Open(ctx, cfg.StoreRoot(),
		assetstore.WithLogger(logger),
		assetstore.WithRuntimeCodec(cfg.Store.RuntimeCodec),
		assetstore.WithMinFreeBytes(uint64(cfg.Store.MinFreeMiB)*1024*1024),
		assetstore.WithRetries(cfg.Remote.FetchRetries, 0),
		assetstore.WithHTTPClient(newHTTPClient(cfg)),
	)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
