// Package paths provides XDG-compliant path resolution for chordsync.
//
// Resolution order:
// 1. CHORDSYNC_HOME (portable root) → $CHORDSYNC_HOME/{config,state,cache}
// 2. XDG env vars → $XDG_*_HOME/chordsync
// 3. Platform defaults → ~/.config/chordsync, ~/.local/state/chordsync, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "chordsync"

func baseDir(sub, xdgVar string, fallback ...string) string {
	if home := os.Getenv("CHORDSYNC_HOME"); home != "" {
		return filepath.Join(home, sub)
	}
	if xdg := os.Getenv(xdgVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append(append([]string{homeDir}, fallback...), appName)...)
	}
	return ""
}

// ConfigDir returns the configuration directory, where the global
// chordsync.yml lives.
func ConfigDir() string {
	return baseDir("config", "XDG_CONFIG_HOME", ".config")
}

// StateDir returns the state directory. Used for logs.
func StateDir() string {
	return baseDir("state", "XDG_STATE_HOME", ".local", "state")
}

// CacheDir returns the cache directory.
func CacheDir() string {
	return baseDir("cache", "XDG_CACHE_HOME", ".cache")
}

// LogDir returns the directory holding client log files.
func LogDir() string {
	dir := StateDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "logs")
}

// EnsureDirs creates all chordsync directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), CacheDir(), LogDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
