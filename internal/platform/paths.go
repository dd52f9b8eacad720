package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// DefaultAppName names the config and data directories.
const DefaultAppName = "manovate"

// Environment variables consulted by OptionsFromEnv and the CLI.
const (
	EnvConfig  = "MANOVATE_CONFIG"
	EnvDBPath  = "MANOVATE_DB_PATH"
	EnvDevMode = "MANOVATE_DEV_MODE"
	EnvAppName = "MANOVATE_APP_NAME"
)

// Paths holds the resolved locations for config and stored records.
type Paths struct {
	ConfigPath string
	DataDir    string
	// DBPath is the sqlite database file.
	DBPath string
	// StoreDir holds one JSON document per collection for the file backend.
	StoreDir string
	// SnapshotDir is the default target for local exports.
	SnapshotDir string
}

// Options defines optional settings for path resolution.
type Options struct {
	AppName string
	DevMode bool
}

// OptionsFromEnv resolves app name and dev mode from the environment.
// Dev mode defaults to on for unreleased builds.
func OptionsFromEnv(getenv func(string) string, version string) Options {
	if getenv == nil {
		getenv = os.Getenv
	}
	opts := Options{AppName: DefaultAppName, DevMode: version == "dev"}
	if name := strings.TrimSpace(getenv(EnvAppName)); name != "" {
		opts.AppName = name
	}
	if raw := strings.TrimSpace(getenv(EnvDevMode)); raw != "" {
		if dev, err := strconv.ParseBool(raw); err == nil {
			opts.DevMode = dev
		}
	}
	return opts
}

// DefaultPaths returns default paths.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{AppName: DefaultAppName})
}

// DefaultPathsWithOptions returns default paths with options.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName := strings.TrimSpace(opts.AppName)
	if appName == "" {
		appName = DefaultAppName
	}
	if opts.DevMode {
		appName += "-dev"
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("user config dir: %w", err)
	}
	dataDir := configDir
	switch runtime.GOOS {
	case "linux":
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return Paths{}, fmt.Errorf("user home dir: %w", homeErr)
		}
		dataDir = filepath.Join(home, ".local", "share")
	case "windows":
		if v := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); v != "" {
			dataDir = v
		}
	}

	env := map[string]string{
		"XDG_CONFIG_HOME": os.Getenv("XDG_CONFIG_HOME"),
		"XDG_DATA_HOME":   os.Getenv("XDG_DATA_HOME"),
		"APPDATA":         os.Getenv("APPDATA"),
		"LOCALAPPDATA":    os.Getenv("LOCALAPPDATA"),
	}
	return PathsFor(runtime.GOOS, env, configDir, dataDir, appName)
}

// PathsFor resolves paths for one platform without touching the environment.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, fmt.Errorf("empty base dirs")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, fmt.Errorf("empty app name")
	}

	configBase := userConfigDir
	dataBase := userDataDir

	switch goos {
	case "linux":
		if v := env["XDG_CONFIG_HOME"]; v != "" {
			configBase = v
		}
		if v := env["XDG_DATA_HOME"]; v != "" {
			dataBase = v
		}
	case "windows":
		if v := env["APPDATA"]; v != "" {
			configBase = v
		}
		if v := env["LOCALAPPDATA"]; v != "" {
			dataBase = v
		}
	}

	appDataDir := filepath.Join(dataBase, appName)
	return Paths{
		ConfigPath:  filepath.Join(configBase, appName, "config.toml"),
		DataDir:     appDataDir,
		DBPath:      filepath.Join(appDataDir, appName+".db"),
		StoreDir:    filepath.Join(appDataDir, "records"),
		SnapshotDir: filepath.Join(appDataDir, "snapshots"),
	}, nil
}
