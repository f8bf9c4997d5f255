package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName names the per-user directories.
const appName = "filevault"

const configFileName = "config.toml"

// Credential store locations under the data directory, per backend.
var credentialFiles = map[string]string{
	BackendFile:   "credentials.json",
	BackendSQLite: "credentials.db",
}

// userDir returns the per-user directory for appName. On Linux xdgEnv
// overrides ~/<linuxRel>; macOS keeps config and data together under
// Application Support.
func userDir(goos, home, xdgEnv, linuxRel string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	case "linux":
		if xdg := os.Getenv(xdgEnv); xdg != "" {
			return filepath.Join(xdg, appName)
		}
	}

	return filepath.Join(home, linuxRel, appName)
}

func homeDir(xdgEnv, linuxRel string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return userDir(runtime.GOOS, home, xdgEnv, linuxRel)
}

// DefaultConfigDir is where config.toml lives (~/.config/filevault on Linux).
func DefaultConfigDir() string {
	return homeDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir is where local credential stores live
// (~/.local/share/filevault on Linux).
func DefaultDataDir() string {
	return homeDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// DefaultConfigPath is the config file used when neither FILEVAULT_CONFIG
// nor --config names one.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultCredentialsPath returns where backend keeps its data when
// storage.path is unset. Backends without a file (keyring, memory) get "".
func DefaultCredentialsPath(backend string) string {
	if backend == "" {
		backend = defaultBackend
	}

	name, ok := credentialFiles[backend]
	if !ok {
		return ""
	}

	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
