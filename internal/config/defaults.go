package config

const (
	defaultConfigPath      = "~/.config/assetflow/config.toml"
	defaultCacheDir        = "~/.local/share/assetflow/cache"
	defaultBundledDir      = "~/.local/share/assetflow/bundled"
	defaultLogDir          = "~/.local/share/assetflow/logs"
	defaultPlatform        = "linux"
	defaultLanguage        = "en"
	defaultRequestTimeout  = 60
	defaultFetchRetries    = 3
	defaultMeteredMode     = "auto"
	defaultMeteredDevType  = "wwan"
	defaultRuntimeCodec    = "lz4"
	defaultMinFreeMiB      = 256
	defaultSceneTickMillis = 16
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:   defaultCacheDir,
			BundledDir: defaultBundledDir,
			LogDir:     defaultLogDir,
		},
		Remote: Remote{
			Platform:       defaultPlatform,
			Language:       defaultLanguage,
			RequestTimeout: defaultRequestTimeout,
			FetchRetries:   defaultFetchRetries,
		},
		Network: Network{
			Metered:         defaultMeteredMode,
			MeteredDevTypes: []string{defaultMeteredDevType},
		},
		Store: Store{
			RuntimeCodec: defaultRuntimeCodec,
			MinFreeMiB:   defaultMinFreeMiB,
		},
		Scene: Scene{
			WaitForLoaders: true,
			TickMillis:     defaultSceneTickMillis,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
