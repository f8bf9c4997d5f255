package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "FILEVAULT_CONFIG"
	EnvAPIURL   = "FILEVAULT_API_URL"
	EnvMode     = "FILEVAULT_MODE"
	EnvPlatform = "FILEVAULT_PLATFORM"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // FILEVAULT_CONFIG: override config file path
	APIURL     string // FILEVAULT_API_URL: explicit API base URL
	Mode       string // FILEVAULT_MODE: development or release
	Platform   string // FILEVAULT_PLATFORM: android, ios, web, desktop
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		APIURL:     os.Getenv(EnvAPIURL),
		Mode:       os.Getenv(EnvMode),
		Platform:   os.Getenv(EnvPlatform),
	}
}
