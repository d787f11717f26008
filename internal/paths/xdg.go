package paths

import (
	"os"
	"path/filepath"
)

const appName = "rai"

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, appName)
	}
	return filepath.Join(homeDir(), fallbackSuffix, appName)
}

// ConfigDir returns the rai config directory ($XDG_CONFIG_HOME/rai).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// CacheDir returns the rai cache directory ($XDG_CACHE_HOME/rai).
func CacheDir() string {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

// ConfigFile returns the path to config.toml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// ResultCacheDir returns where routed tool results are cached.
func ResultCacheDir() string {
	return filepath.Join(CacheDir(), "results")
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
