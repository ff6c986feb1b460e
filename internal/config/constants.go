package config

const (
	// Fetch Defaults
	DefaultFetchUserAgent            = "changewatch/1.0 (+https://github.com/h-sim/ai-change-watcher)"
	DefaultFetchTimeoutSeconds       = 30
	DefaultFetchTargetTimeoutSeconds = 60
	DefaultFetchMaxConcurrency       = 4
	DefaultFetchMaxContentSize       = 20 * 1024 * 1024
	DefaultFetchMaxRedirects         = 10

	// Storage Defaults
	DefaultStorageBackend          = "sqlite"
	DefaultStorageHistoryLimit     = 50
	DefaultStorageCompressionCodec = "zstd"
	DefaultStorageAppDir           = "changewatch"

	// Diff Defaults
	DefaultDiffMaxLines      = 20
	DefaultDiffMaxLineLength = 200

	// Feed Defaults
	DefaultFeedOutputDir   = "docs"
	DefaultFeedTitle       = "AI Change Watcher"
	DefaultFeedDescription = "Changes detected in AI platform documentation, feeds and API specifications"
	DefaultFeedMaxItems    = 100

	// EnvConfigPath names the environment variable holding the config path.
	EnvConfigPath = "CHANGEWATCH_CONFIG_PATH"
)
