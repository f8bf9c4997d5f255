package config

// Storage backend names. They match the names credstore.Open accepts.
const (
	BackendFile    = "file"
	BackendKeyring = "keyring"
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"
)

// Default values for configuration options. These are layer 0 of the
// override chain and give a working local development setup without any
// config file.
const (
	defaultPlatform             = "desktop"
	defaultDevice               = "emulator"
	defaultMode                 = "development"
	defaultDevPort              = 3001
	defaultDevScheme            = "http"
	defaultRequestTimeout       = "30s"
	defaultUploadTimeout        = "120s"
	defaultProbeTimeout         = "5s"
	defaultMaxRetries           = 3
	defaultUserAgent            = "filevault-go/0.1"
	defaultUploadBandwidthLimit = "0"
	defaultBackend              = BackendFile
	defaultLogLevel             = "warn"
	defaultLogFormat            = "auto"
	defaultTheme                = "system"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset fields keep their
// defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Platform:  defaultPlatform,
			Device:    defaultDevice,
			Mode:      defaultMode,
			DevPort:   defaultDevPort,
			DevScheme: defaultDevScheme,
		},
		Network: NetworkConfig{
			RequestTimeout:       defaultRequestTimeout,
			UploadTimeout:        defaultUploadTimeout,
			ProbeTimeout:         defaultProbeTimeout,
			MaxRetries:           defaultMaxRetries,
			UserAgent:            defaultUserAgent,
			UploadBandwidthLimit: defaultUploadBandwidthLimit,
		},
		Storage: StorageConfig{
			Backend: defaultBackend,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		UI: UIConfig{
			Theme: defaultTheme,
		},
	}
}
