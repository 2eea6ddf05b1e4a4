package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "alipan-go"

const (
	configFileName   = "config.toml"
	stateFileName    = "state.db"
	thumbnailDirName = "thumbnails"
)

// baseDir describes where one class of files lives: an XDG variable with
// its home-relative fallback, and the macOS Library location.
type baseDir struct {
	xdgEnv   string
	fallback []string
	darwin   []string
}

var (
	configBase = baseDir{"XDG_CONFIG_HOME", []string{".config"}, []string{"Library", "Application Support"}}
	// The state database holds credentials, so it sits with data rather
	// than cache.
	dataBase  = baseDir{"XDG_DATA_HOME", []string{".local", "share"}, []string{"Library", "Application Support"}}
	cacheBase = baseDir{"XDG_CACHE_HOME", []string{".cache"}, []string{"Library", "Caches"}}
)

// resolve returns the application directory under b for goos, or "" if
// the home directory is unknown.
func (b baseDir) resolve(goos, home string, getenv func(string) string) string {
	if goos == "darwin" {
		if home == "" {
			return ""
		}

		return filepath.Join(append(append([]string{home}, b.darwin...), appName)...)
	}

	// XDG variables are honoured on every non-macOS platform.
	if xdg := getenv(b.xdgEnv); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, appName)
	}

	if home == "" {
		return ""
	}

	return filepath.Join(append(append([]string{home}, b.fallback...), appName)...)
}

func (b baseDir) dir() string {
	home, _ := os.UserHomeDir()

	return b.resolve(runtime.GOOS, home, os.Getenv)
}

// DefaultConfigDir is the directory searched for config.toml.
func DefaultConfigDir() string { return configBase.dir() }

// DefaultDataDir holds the state database.
func DefaultDataDir() string { return dataBase.dir() }

// DefaultCacheDir holds disposable files such as thumbnails.
func DefaultCacheDir() string { return cacheBase.dir() }

// DefaultConfigPath is used when neither ALIPAN_GO_CONFIG nor --config is
// given.
func DefaultConfigPath() string { return joinIfSet(DefaultConfigDir(), configFileName) }

func DefaultStatePath() string { return joinIfSet(DefaultDataDir(), stateFileName) }

func DefaultThumbnailDir() string { return joinIfSet(DefaultCacheDir(), thumbnailDirName) }

func joinIfSet(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, rest)
	}

	return path
}
